package amplicon

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

// LengthStats counts merged sequences rejected by the maximum-length
// policy. Rejection is a diagnostic, never an error.
type LengthStats struct {
	DroppedVariants int `json:"dropped_variants"`
	DroppedReads    int `json:"dropped_reads"`
}

// BuildAbundanceMatrix pivots the per-sample merged sequences into one
// samples x variants count table. Identical sequences from different
// samples share a column; rows and columns are sorted so the table is
// deterministic. Sequences longer than maxLength are dropped and counted.
func BuildAbundanceMatrix(merged map[string]seqlib.MergedSample, maxLength int) (*seqlib.AbundanceMatrix, LengthStats) {
	var stats LengthStats

	samples := make([]string, 0, len(merged))
	for id := range merged {
		samples = append(samples, id)
	}
	sort.Strings(samples)

	colSet := make(map[string]bool)
	kept := make(map[string]map[string]int, len(merged))
	for _, id := range samples {
		kept[id] = make(map[string]int)
		for _, r := range merged[id] {
			if maxLength > 0 && len(r.Sequence) > maxLength {
				stats.DroppedVariants++
				stats.DroppedReads += r.Abundance
				continue
			}
			kept[id][r.Sequence] += r.Abundance
			colSet[r.Sequence] = true
		}
	}

	sequences := make([]string, 0, len(colSet))
	for s := range colSet {
		sequences = append(sequences, s)
	}
	sort.Strings(sequences)

	m := &seqlib.AbundanceMatrix{Samples: samples, Sequences: sequences}
	for _, id := range samples {
		row := make([]int, len(sequences))
		for j, s := range sequences {
			row[j] = kept[id][s]
		}
		m.Counts = append(m.Counts, row)
	}
	return m, stats
}

// TotalAbundance is the grand total of the matrix.
func TotalAbundance(m *seqlib.AbundanceMatrix) float64 {
	rows := make([]float64, len(m.Samples))
	for i := range m.Samples {
		rows[i] = float64(m.RowSum(i))
	}
	return floats.Sum(rows)
}

// AbundanceLossPct is the abundance-weighted percentage removed going
// from one matrix to another, e.g. across chimera removal.
func AbundanceLossPct(before, after *seqlib.AbundanceMatrix) float64 {
	b := TotalAbundance(before)
	if b == 0 {
		return 0
	}
	return 100 * (b - TotalAbundance(after)) / b
}
