package amplicon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

func TestWriteTaxonomyTSVKeepsUnresolvedFields(t *testing.T) {
	table := &seqlib.TaxonomyTable{
		Ranks: seqlib.RanksTo("Genus"),
		Assignments: []seqlib.Assignment{
			{Sequence: "ACGTACGT", Labels: []string{"Bacteria", "Proteobacteria", "", "", "", ""}},
		},
	}

	path := filepath.Join(t.TempDir(), "taxonomy.tsv")
	if err := WriteTaxonomyTSV(table, path); err != nil {
		t.Fatalf("WriteTaxonomyTSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row", len(lines))
	}

	// Unresolved ranks are empty fields, not dropped fields: every row
	// carries the full column count even when the trailing ranks are blank.
	fields := strings.Split(lines[1], "\t")
	if len(fields) != 7 {
		t.Fatalf("row has %d fields, want 7: %q", len(fields), lines[1])
	}
	if fields[1] != "Bacteria" || fields[2] != "Proteobacteria" {
		t.Errorf("assigned ranks = %v", fields[1:3])
	}
	for i := 3; i < 7; i++ {
		if fields[i] != "" {
			t.Errorf("rank field %d = %q, want empty", i, fields[i])
		}
	}
}
