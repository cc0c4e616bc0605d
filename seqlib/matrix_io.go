package seqlib

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// WriteMatrixTSV writes the matrix as a headered TSV, one row per sample,
// one column per sequence variant. The same layout is read back by
// ReadMatrixTSV and by the R side of the external library.
func WriteMatrixTSV(m *AbundanceMatrix, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	header := append([]string{"sample"}, m.Sequences...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, id := range m.Samples {
		row := make([]string, 0, len(m.Sequences)+1)
		row = append(row, id)
		for _, n := range m.Counts[i] {
			row = append(row, strconv.Itoa(n))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadMatrixTSV reads a matrix written by WriteMatrixTSV (or by the
// external library's write.table with col.names=NA, whose corner header
// cell is empty).
func ReadMatrixTSV(path string) (*AbundanceMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty abundance table", path)
	}

	m := &AbundanceMatrix{Sequences: records[0][1:]}
	for _, rec := range records[1:] {
		if len(rec) != len(m.Sequences)+1 {
			return nil, fmt.Errorf("%s: row %s has %d columns, want %d", path, rec[0], len(rec)-1, len(m.Sequences))
		}
		counts := make([]int, len(m.Sequences))
		for j, cell := range rec[1:] {
			n, err := strconv.Atoi(cell)
			if err != nil {
				return nil, fmt.Errorf("%s: bad count %q for sample %s: %w", path, cell, rec[0], err)
			}
			if n < 0 {
				return nil, fmt.Errorf("%s: negative count for sample %s", path, rec[0])
			}
			counts[j] = n
		}
		m.Samples = append(m.Samples, rec[0])
		m.Counts = append(m.Counts, counts)
	}
	return m, nil
}
