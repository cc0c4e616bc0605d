package amplicon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

// Stage identifies one pipeline stage, in execution order.
type Stage int

const (
	StageDiscovery Stage = iota
	StageFilter
	StageErrorModel
	StageDenoise
	StageMerge
	StageChimera
	StageTrack
	StageTaxonomy
)

var stageNames = [...]string{
	"discovery", "filter", "error-model", "denoise", "merge", "chimera", "track", "taxonomy",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage resolves a stage name as given to --resume_from.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q (valid: %v)", name, stageNames)
}

// Checkpoint file names, one durable file per stage product. Each
// direction's denoised table is saved under its own key; the two must
// never share a label.
const (
	ckptSamples     = "samples.json"
	ckptFilterPairs = "filtered_pairs.json"
	ckptFilterStats = "filter_stats.json"
	ckptErrModelF   = "error_model_F.json"
	ckptErrModelR   = "error_model_R.json"
	ckptDenoisedF   = "denoised_F.json"
	ckptDenoisedR   = "denoised_R.json"
	ckptMerged      = "merged.json"
	ckptLengthStats = "merge_length_stats.json"
	ckptSeqTab      = "seqtab.tsv"
	ckptSeqTabClean = "seqtab_nochim.tsv"
	ckptChimStats   = "chimera_stats.json"
	ckptTrack       = "track_reads.csv"
	ckptTaxonomy    = "taxonomy.tsv"
)

// stageCheckpoints lists the files each stage writes, in write order.
var stageCheckpoints = map[Stage][]string{
	StageDiscovery:  {ckptSamples},
	StageFilter:     {ckptFilterPairs, ckptFilterStats},
	StageErrorModel: {ckptErrModelF, ckptErrModelR},
	StageDenoise:    {ckptDenoisedF, ckptDenoisedR},
	StageMerge:      {ckptMerged, ckptLengthStats, ckptSeqTab},
	StageChimera:    {ckptSeqTabClean, ckptChimStats},
	StageTrack:      {ckptTrack},
	StageTaxonomy:   {ckptTaxonomy},
}

// Checkpoints is the durable per-run state directory.
type Checkpoints struct {
	Dir string
}

func (c Checkpoints) Path(name string) string { return filepath.Join(c.Dir, name) }

func (c Checkpoints) SaveJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path(name), data, 0644)
}

func (c Checkpoints) LoadJSON(name string, v any) error {
	data, err := os.ReadFile(c.Path(name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ValidateResume checks that every stage before from has its checkpoint
// files on disk and that all per-sample checkpoints agree on one SampleID
// set. It runs before any work starts, so a bad resume touches nothing.
func (c Checkpoints) ValidateResume(from Stage) error {
	for s := StageDiscovery; s < from; s++ {
		for _, name := range stageCheckpoints[s] {
			if _, err := os.Stat(c.Path(name)); err != nil {
				return fmt.Errorf("cannot resume from %s: stage %s checkpoint %s missing: %w", from, s, name, err)
			}
		}
	}

	sets := make(map[string][]string)
	if from > StageFilter {
		var stats []seqlib.FilterStats
		if err := c.LoadJSON(ckptFilterStats, &stats); err != nil {
			return err
		}
		sets[ckptFilterStats] = lo.Map(stats, func(s seqlib.FilterStats, _ int) string { return s.SampleID })
	}
	if from > StageDenoise {
		for _, name := range []string{ckptDenoisedF, ckptDenoisedR} {
			var den map[string]seqlib.DenoisedSample
			if err := c.LoadJSON(name, &den); err != nil {
				return err
			}
			sets[name] = lo.Keys(den)
		}
	}
	if from > StageMerge {
		var merged map[string]seqlib.MergedSample
		if err := c.LoadJSON(ckptMerged, &merged); err != nil {
			return err
		}
		sets[ckptMerged] = lo.Keys(merged)

		m, err := seqlib.ReadMatrixTSV(c.Path(ckptSeqTab))
		if err != nil {
			return err
		}
		sets[ckptSeqTab] = append([]string(nil), m.Samples...)
	}
	if from > StageChimera {
		m, err := seqlib.ReadMatrixTSV(c.Path(ckptSeqTabClean))
		if err != nil {
			return err
		}
		sets[ckptSeqTabClean] = append([]string(nil), m.Samples...)
	}

	var reference []string
	var refName string
	for _, name := range []string{ckptFilterStats, ckptDenoisedF, ckptDenoisedR, ckptMerged, ckptSeqTab, ckptSeqTabClean} {
		ids, ok := sets[name]
		if !ok {
			continue
		}
		sort.Strings(ids)
		if reference == nil {
			reference, refName = ids, name
			continue
		}
		if missing, extra := lo.Difference(reference, ids); len(missing) > 0 || len(extra) > 0 {
			return &TrackingMismatchError{
				Stage:   fmt.Sprintf("%s vs %s", refName, name),
				Missing: append(missing, extra...),
			}
		}
	}
	return nil
}
