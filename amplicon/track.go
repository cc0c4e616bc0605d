package amplicon

import (
	"os"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/samber/lo"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

// TrackInput carries every stage output the read-tracking report joins.
type TrackInput struct {
	Stats     []seqlib.FilterStats
	DenoisedF map[string]seqlib.DenoisedSample
	DenoisedR map[string]seqlib.DenoisedSample
	Merged    map[string]seqlib.MergedSample
	Cleaned   *seqlib.AbundanceMatrix
}

// BuildReadTracking joins the per-sample counts of all six checkpoints
// into one table with the fixed column order
// sample,input,filtered,denoisedF,denoisedR,merged,nonchim. Every sample
// must be present in every stage output; a gap means the checkpoints do
// not come from one consistent run.
func BuildReadTracking(in TrackInput) (dataframe.DataFrame, error) {
	ids := lo.Map(in.Stats, func(s seqlib.FilterStats, _ int) string { return s.SampleID })
	sort.Strings(ids)

	stages := []struct {
		name string
		has  func(id string) bool
	}{
		{"denoisedF", func(id string) bool { _, ok := in.DenoisedF[id]; return ok }},
		{"denoisedR", func(id string) bool { _, ok := in.DenoisedR[id]; return ok }},
		{"merged", func(id string) bool { _, ok := in.Merged[id]; return ok }},
		{"nonchim", func(id string) bool { return in.Cleaned.SampleIndex(id) >= 0 }},
	}
	for _, stage := range stages {
		missing := lo.Filter(ids, func(id string, _ int) bool { return !stage.has(id) })
		if len(missing) > 0 {
			return dataframe.DataFrame{}, &TrackingMismatchError{Stage: stage.name, Missing: missing}
		}
	}

	statsByID := lo.KeyBy(in.Stats, func(s seqlib.FilterStats) string { return s.SampleID })

	input := make([]int, len(ids))
	filtered := make([]int, len(ids))
	denF := make([]int, len(ids))
	denR := make([]int, len(ids))
	mergedReads := make([]int, len(ids))
	nonchim := make([]int, len(ids))
	for i, id := range ids {
		input[i] = statsByID[id].ReadsIn
		filtered[i] = statsByID[id].ReadsOut
		denF[i] = in.DenoisedF[id].Reads()
		denR[i] = in.DenoisedR[id].Reads()
		mergedReads[i] = in.Merged[id].Reads()
		nonchim[i] = in.Cleaned.RowSum(in.Cleaned.SampleIndex(id))
	}

	df := dataframe.New(
		series.New(ids, series.String, "sample"),
		series.New(input, series.Int, "input"),
		series.New(filtered, series.Int, "filtered"),
		series.New(denF, series.Int, "denoisedF"),
		series.New(denR, series.Int, "denoisedR"),
		series.New(mergedReads, series.Int, "merged"),
		series.New(nonchim, series.Int, "nonchim"),
	)
	return df, df.Error()
}

// WriteReadTracking writes the report as CSV.
func WriteReadTracking(df dataframe.DataFrame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return df.WriteCSV(f)
}
