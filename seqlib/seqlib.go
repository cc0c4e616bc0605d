// Package seqlib defines the contract with the external amplicon denoising
// library. The pipeline only ever talks to this interface, so a different
// backend (or a fake in tests) can be dropped in without touching the
// orchestration code.
package seqlib

type PoolMode string

const (
	PoolIndependent PoolMode = "independent"
	PoolPooled      PoolMode = "pooled"
	PoolPseudo      PoolMode = "pseudo"
)

type ChimeraMethod string

const (
	ChimeraConsensus ChimeraMethod = "consensus"
	ChimeraPooled    ChimeraMethod = "pooled"
	ChimeraPerSample ChimeraMethod = "per-sample"
)

type Direction string

const (
	Forward Direction = "F"
	Reverse Direction = "R"
)

type FilterConfig struct {
	TruncQ       int
	MaxN         int
	MaxEEForward float64
	MaxEEReverse float64
	RemovePhix   bool
	PhixFasta    string
	OutputDir    string
	Threads      int
}

type MergeConfig struct {
	MinOverlap  int
	MaxMismatch int
	Threads     int
}

type TaxonomyConfig struct {
	ReferenceDB string
	MaxRank     string
	MinBoot     int
	Threads     int
}

// SequenceAnalysis is the external capability boundary. Every statistically
// nontrivial step of the pipeline goes through here.
type SequenceAnalysis interface {
	FilterReads(pairs []ReadFilePair, cfg FilterConfig) ([]ReadFilePair, []FilterStats, error)
	LearnErrorModel(files []string, dir Direction, threads int) (ErrorModel, error)
	Denoise(files []string, model ErrorModel, mode PoolMode, threads int) (map[string]DenoisedSample, error)
	MergePairs(fwd, rev map[string]DenoisedSample, fwdFiles, revFiles []string, cfg MergeConfig) (map[string]MergedSample, error)
	RemoveChimeras(m *AbundanceMatrix, method ChimeraMethod, threads int) (*AbundanceMatrix, ChimeraStats, error)
	AssignTaxonomy(sequences []string, cfg TaxonomyConfig) (*TaxonomyTable, error)
}
