package amplicon

import (
	"strings"
	"testing"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

func TestBuildAbundanceMatrixSharesColumns(t *testing.T) {
	merged := map[string]seqlib.MergedSample{
		"S2": {
			{Sequence: "AAAA", Abundance: 7},
			{Sequence: "CCCC", Abundance: 3},
		},
		"S1": {
			{Sequence: "AAAA", Abundance: 10},
		},
	}

	m, stats := BuildAbundanceMatrix(merged, 450)
	if stats.DroppedVariants != 0 {
		t.Fatalf("dropped %d variants, want 0", stats.DroppedVariants)
	}
	if len(m.Samples) != 2 || m.Samples[0] != "S1" || m.Samples[1] != "S2" {
		t.Fatalf("samples = %v, want [S1 S2]", m.Samples)
	}
	if len(m.Sequences) != 2 {
		t.Fatalf("sequences = %v, want 2 shared columns", m.Sequences)
	}

	aCol := -1
	for j, s := range m.Sequences {
		if s == "AAAA" {
			aCol = j
		}
	}
	if aCol < 0 {
		t.Fatal("AAAA column missing")
	}
	if m.Counts[0][aCol] != 10 || m.Counts[1][aCol] != 7 {
		t.Errorf("AAAA counts = %d, %d; want 10, 7", m.Counts[0][aCol], m.Counts[1][aCol])
	}
	for i := range m.Counts {
		for _, n := range m.Counts[i] {
			if n < 0 {
				t.Fatalf("negative count in row %d", i)
			}
		}
	}
}

func TestBuildAbundanceMatrixDropsTooLong(t *testing.T) {
	long := strings.Repeat("A", 500)
	merged := map[string]seqlib.MergedSample{
		"S1": {
			{Sequence: "ACGT", Abundance: 40},
			{Sequence: long, Abundance: 3},
		},
	}

	m, stats := BuildAbundanceMatrix(merged, 450)
	if stats.DroppedVariants != 1 || stats.DroppedReads != 3 {
		t.Fatalf("length stats = %+v, want 1 variant / 3 reads", stats)
	}
	for _, s := range m.Sequences {
		if s == long {
			t.Fatal("over-length sequence made it into the matrix")
		}
	}
	if m.RowSum(0) != 40 {
		t.Errorf("row sum = %d, want 40", m.RowSum(0))
	}
}

func TestAbundanceLossPct(t *testing.T) {
	before := &seqlib.AbundanceMatrix{
		Samples:   []string{"S1", "S2"},
		Sequences: []string{"A", "B"},
		Counts:    [][]int{{60, 20}, {10, 10}},
	}
	after := &seqlib.AbundanceMatrix{
		Samples:   []string{"S1", "S2"},
		Sequences: []string{"A"},
		Counts:    [][]int{{60}, {10}},
	}

	if got := AbundanceLossPct(before, after); got != 30 {
		t.Errorf("AbundanceLossPct = %v, want 30", got)
	}
	for i := range after.Samples {
		if after.RowSum(i) > before.RowSum(i) {
			t.Errorf("row %d grew across chimera removal", i)
		}
	}
}
