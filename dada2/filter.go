package dada2

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

// FilterReads applies per-read quality filtering to every sample pair and
// writes the survivors under <OutputDir>/filtered/. Reads are truncated at
// the first base below TruncQ; a pair is dropped when either mate has more
// than MaxN ambiguous bases, exceeds its expected-error budget, or matches
// the phiX spike-in. Read length is never force-truncated, the overlap is
// needed downstream.
//
// A malformed input file, or a mate-count mismatch between the two
// files, skips that sample with a warning; the run continues with the
// rest.
func (L *Library) FilterReads(pairs []seqlib.ReadFilePair, cfg seqlib.FilterConfig) ([]seqlib.ReadFilePair, []seqlib.FilterStats, error) {
	filteredDir := filepath.Join(cfg.OutputDir, "filtered")
	if err := os.MkdirAll(filteredDir, 0755); err != nil {
		return nil, nil, err
	}

	var phix *phixScreen
	if cfg.RemovePhix && cfg.PhixFasta != "" {
		var err error
		phix, err = loadPhixScreen(cfg.PhixFasta)
		if err != nil {
			return nil, nil, fmt.Errorf("loading phiX reference: %w", err)
		}
	}

	maxJobs := cfg.Threads
	if maxJobs < 1 {
		maxJobs = 1
	}

	var (
		mu       sync.Mutex
		outPairs []seqlib.ReadFilePair
		outStats []seqlib.FilterStats
	)

	var g errgroup.Group
	g.SetLimit(maxJobs)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			fwdOut := filepath.Join(filteredDir, pair.SampleID+"_F.fastq.gz")
			revOut := filepath.Join(filteredDir, pair.SampleID+"_R.fastq.gz")

			stats, fErr := filterPair(pair, fwdOut, revOut, cfg, phix)
			if fErr != nil {
				fmt.Printf("WARNING: skipping sample %s: %v\n", pair.SampleID, fErr)
				return nil
			}
			mu.Lock()
			outPairs = append(outPairs, seqlib.ReadFilePair{SampleID: pair.SampleID, Forward: fwdOut, Reverse: revOut})
			outStats = append(outStats, stats)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Aggregation must be deterministic regardless of worker finish order.
	sort.Slice(outPairs, func(i, j int) bool { return outPairs[i].SampleID < outPairs[j].SampleID })
	sort.Slice(outStats, func(i, j int) bool { return outStats[i].SampleID < outStats[j].SampleID })
	return outPairs, outStats, nil
}

func filterPair(pair seqlib.ReadFilePair, fwdOut, revOut string, cfg seqlib.FilterConfig, phix *phixScreen) (seqlib.FilterStats, error) {
	fwdSc, fwdClose, err := openFastq(pair.Forward)
	if err != nil {
		return seqlib.FilterStats{}, &seqlib.FilterError{SampleID: pair.SampleID, Path: pair.Forward, Err: err}
	}
	defer fwdClose()

	revSc, revClose, err := openFastq(pair.Reverse)
	if err != nil {
		return seqlib.FilterStats{}, &seqlib.FilterError{SampleID: pair.SampleID, Path: pair.Reverse, Err: err}
	}
	defer revClose()

	fwdW, fwdFlush, err := createFastq(fwdOut)
	if err != nil {
		return seqlib.FilterStats{}, err
	}
	defer fwdFlush()

	revW, revFlush, err := createFastq(revOut)
	if err != nil {
		return seqlib.FilterStats{}, err
	}
	defer revFlush()

	stats := seqlib.FilterStats{SampleID: pair.SampleID}
	for fwdSc.Next() {
		if !revSc.Next() {
			if err := revSc.Error(); err != nil && err != io.EOF {
				return stats, &seqlib.FilterError{SampleID: pair.SampleID, Path: pair.Reverse, Err: err}
			}
			return stats, &seqlib.FilterError{
				SampleID: pair.SampleID,
				Path:     pair.Reverse,
				Err:      fmt.Errorf("forward read %d has no reverse mate", stats.ReadsIn+1),
			}
		}
		stats.ReadsIn++

		fwd := fwdSc.Seq().(*linear.QSeq)
		rev := revSc.Seq().(*linear.QSeq)

		truncAtQ(fwd, cfg.TruncQ)
		truncAtQ(rev, cfg.TruncQ)
		if fwd.Len() == 0 || rev.Len() == 0 {
			continue
		}
		if countN(fwd) > cfg.MaxN || countN(rev) > cfg.MaxN {
			continue
		}
		if expectedErrors(fwd) > cfg.MaxEEForward || expectedErrors(rev) > cfg.MaxEEReverse {
			continue
		}
		if phix != nil && (phix.matches(seqString(fwd)) || phix.matches(seqString(rev))) {
			continue
		}

		if _, err := fwdW.Write(fwd); err != nil {
			return stats, err
		}
		if _, err := revW.Write(rev); err != nil {
			return stats, err
		}
		stats.ReadsOut++
	}

	if err := fwdSc.Error(); err != nil && err != io.EOF {
		return stats, &seqlib.FilterError{SampleID: pair.SampleID, Path: pair.Forward, Err: err}
	}
	if err := revSc.Error(); err != nil && err != io.EOF {
		return stats, &seqlib.FilterError{SampleID: pair.SampleID, Path: pair.Reverse, Err: err}
	}
	if revSc.Next() {
		return stats, &seqlib.FilterError{
			SampleID: pair.SampleID,
			Path:     pair.Forward,
			Err:      fmt.Errorf("reverse read %d has no forward mate", stats.ReadsIn+1),
		}
	}
	return stats, nil
}

// truncAtQ cuts the read at the first base whose quality falls below q.
func truncAtQ(s *linear.QSeq, q int) {
	for i, ql := range s.Seq {
		if int(ql.Q) < q {
			s.Seq = s.Seq[:i]
			return
		}
	}
}

func countN(s *linear.QSeq) int {
	n := 0
	for _, ql := range s.Seq {
		if ql.L == 'N' || ql.L == 'n' {
			n++
		}
	}
	return n
}

// expectedErrors is the cumulative error estimate sum(10^(-Q/10)).
func expectedErrors(s *linear.QSeq) float64 {
	ee := 0.0
	for _, ql := range s.Seq {
		ee += ql.Q.ProbE()
	}
	return ee
}

func seqString(s *linear.QSeq) string {
	var sb strings.Builder
	sb.Grow(s.Len())
	for _, ql := range s.Seq {
		sb.WriteByte(byte(ql.L))
	}
	return sb.String()
}

func openFastq(path string) (*seqio.Scanner, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = f
	closer := func() { f.Close() }
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		r = gz
		closer = func() {
			gz.Close()
			f.Close()
		}
	}
	tmpl := linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)
	return seqio.NewScanner(fastq.NewReader(r, tmpl)), closer, nil
}

func createFastq(path string) (*fastq.Writer, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	gz := gzip.NewWriter(f)
	w := fastq.NewWriter(gz)
	flush := func() {
		gz.Close()
		f.Close()
	}
	return w, flush, nil
}

// phixScreen holds both strands of the spike-in control genome. A read is
// treated as phiX when it is an exact substring of either strand.
type phixScreen struct {
	fwd string
	rev string
}

func loadPhixScreen(path string) (*phixScreen, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNAredundant)))
	var genome strings.Builder
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		for _, l := range s.Seq {
			genome.WriteByte(byte(l))
		}
	}
	if err := sc.Error(); err != nil && err != io.EOF {
		return nil, err
	}
	fwd := strings.ToUpper(genome.String())
	return &phixScreen{fwd: fwd, rev: reverseComplement(fwd)}, nil
}

func (p *phixScreen) matches(read string) bool {
	read = strings.ToUpper(read)
	return strings.Contains(p.fwd, read) || strings.Contains(p.rev, read)
}

func reverseComplement(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		var c byte
		switch s[len(s)-1-i] {
		case 'A':
			c = 'T'
		case 'T':
			c = 'A'
		case 'G':
			c = 'C'
		case 'C':
			c = 'G'
		default:
			c = 'N'
		}
		b[i] = c
	}
	return string(b)
}
