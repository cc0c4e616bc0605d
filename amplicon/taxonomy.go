package amplicon

import (
	"encoding/csv"
	"os"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

// WriteTaxonomyTSV writes the taxonomy table aligned to the abundance
// matrix columns. Unresolved ranks stay empty.
func WriteTaxonomyTSV(t *seqlib.TaxonomyTable, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(append([]string{"sequence"}, t.Ranks...)); err != nil {
		return err
	}
	for _, a := range t.Assignments {
		if err := w.Write(append([]string{a.Sequence}, a.Labels...)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
