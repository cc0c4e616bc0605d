package seqlib

import "fmt"

// ReadFilePair is one sample's forward/reverse read files.
type ReadFilePair struct {
	SampleID string `json:"sample_id"`
	Forward  string `json:"forward"`
	Reverse  string `json:"reverse"`
}

// FilterStats is the per-sample before/after read count from filtering.
// ReadsOut is never larger than ReadsIn.
type FilterStats struct {
	SampleID string `json:"sample_id"`
	ReadsIn  int    `json:"reads_in"`
	ReadsOut int    `json:"reads_out"`
}

// ErrorModel is the converged per-direction error model. The model itself
// stays in the backend's artifact file; the pipeline only moves the handle
// around and never looks inside.
type ErrorModel struct {
	Direction Direction `json:"direction"`
	Artifact  string    `json:"artifact"`
	Converged bool      `json:"converged"`
	Rounds    int       `json:"rounds"`
}

// DenoisedSample maps each inferred sequence variant to its abundance.
type DenoisedSample map[string]int

// Reads is the total read count represented by the sample's variants.
func (d DenoisedSample) Reads() int {
	total := 0
	for _, n := range d {
		total += n
	}
	return total
}

// MergedRead is one merged full-length sequence with overlap diagnostics.
type MergedRead struct {
	Sequence   string `json:"sequence"`
	Abundance  int    `json:"abundance"`
	Overlap    int    `json:"overlap"`
	Mismatches int    `json:"mismatches"`
}

type MergedSample []MergedRead

// Reads is the total read count across the sample's merged sequences.
func (m MergedSample) Reads() int {
	total := 0
	for _, r := range m {
		total += r.Abundance
	}
	return total
}

// AbundanceMatrix is the samples x sequence-variants count table. Columns
// are identified by exact sequence content; identical sequences from
// different samples share a column.
type AbundanceMatrix struct {
	Samples   []string `json:"samples"`
	Sequences []string `json:"sequences"`
	Counts    [][]int  `json:"counts"`
}

// RowSum is the total abundance of one sample across all variants.
func (m *AbundanceMatrix) RowSum(i int) int {
	total := 0
	for _, n := range m.Counts[i] {
		total += n
	}
	return total
}

// SampleIndex returns the row of a sample, or -1.
func (m *AbundanceMatrix) SampleIndex(id string) int {
	for i, s := range m.Samples {
		if s == id {
			return i
		}
	}
	return -1
}

// ChimeraStats summarises what chimera removal took out.
type ChimeraStats struct {
	VariantsRemoved  int     `json:"variants_removed"`
	AbundancePctGone float64 `json:"abundance_pct_gone"`
}

// TaxonomyTable holds per-variant rank assignments aligned to the
// abundance matrix columns. An empty label means the rank was left
// unresolved because classifier confidence fell below the threshold.
type TaxonomyTable struct {
	Ranks       []string     `json:"ranks"`
	Assignments []Assignment `json:"assignments"`
}

type Assignment struct {
	Sequence string   `json:"sequence"`
	Labels   []string `json:"labels"`
}

// FilterError marks a malformed input read file. The pipeline skips the
// sample with a warning instead of aborting the run.
type FilterError struct {
	SampleID string
	Path     string
	Err      error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filtering sample %s (%s): %v", e.SampleID, e.Path, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }
