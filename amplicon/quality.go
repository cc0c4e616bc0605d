package amplicon

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"gonum.org/v1/gonum/stat"
)

// QualityProfile holds per-cycle quality summaries of one read file.
type QualityProfile struct {
	File   string
	Reads  int
	Cycles []int
	Mean   []float64
	Q25    []float64
	Q75    []float64
}

// ProfileQuality aggregates per-cycle quality over up to maxReads reads
// (0 means all).
func ProfileQuality(fastqPath string, maxReads int) (*QualityProfile, error) {
	f, err := os.Open(fastqPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(fastqPath, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	tmpl := linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)
	sc := seqio.NewScanner(fastq.NewReader(r, tmpl))

	var perCycle [][]float64
	reads := 0
	for sc.Next() {
		s := sc.Seq().(*linear.QSeq)
		for i, ql := range s.Seq {
			if i >= len(perCycle) {
				perCycle = append(perCycle, nil)
			}
			perCycle[i] = append(perCycle[i], float64(ql.Q))
		}
		reads++
		if maxReads > 0 && reads >= maxReads {
			break
		}
	}
	if err := sc.Error(); err != nil && err != io.EOF {
		return nil, err
	}
	if reads == 0 {
		return nil, fmt.Errorf("%s: no reads", fastqPath)
	}

	p := &QualityProfile{File: fastqPath, Reads: reads}
	for i, qs := range perCycle {
		sort.Float64s(qs)
		p.Cycles = append(p.Cycles, i+1)
		p.Mean = append(p.Mean, stat.Mean(qs, nil))
		p.Q25 = append(p.Q25, stat.Quantile(0.25, stat.Empirical, qs, nil))
		p.Q75 = append(p.Q75, stat.Quantile(0.75, stat.Empirical, qs, nil))
	}
	return p, nil
}

// PlotQualityProfile renders the profile as an HTML line chart.
func PlotQualityProfile(p *QualityProfile, title, outHTML string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d reads from %s", p.Reads, p.File)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Quality (Phred)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cycle"}),
	)

	toLineData := func(vals []float64) []opts.LineData {
		var data []opts.LineData
		for _, v := range vals {
			data = append(data, opts.LineData{Value: v})
		}
		return data
	}

	line.SetXAxis(p.Cycles).
		AddSeries("Mean", toLineData(p.Mean)).
		AddSeries("Q25", toLineData(p.Q25)).
		AddSeries("Q75", toLineData(p.Q75))

	page := components.NewPage()
	page.AddCharts(line)

	f, err := os.Create(outHTML)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}
