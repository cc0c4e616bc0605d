package dada2

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

type readSpec struct {
	seq  string
	qual string
}

func writeFastqGz(t *testing.T, path string, reads []readSpec) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	gz := gzip.NewWriter(f)
	for i, r := range reads {
		fmt.Fprintf(gz, "@read%d\n%s\n+\n%s\n", i, r.seq, r.qual)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}
}

func randomSeq(rng *rand.Rand, n int) string {
	const bases = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = bases[rng.Intn(4)]
	}
	return string(b)
}

func goodReads(rng *rand.Rand, n, length int) []readSpec {
	reads := make([]readSpec, n)
	for i := range reads {
		reads[i] = readSpec{seq: randomSeq(rng, length), qual: strings.Repeat("I", length)} // I = Q40
	}
	return reads
}

func countFastqGz(t *testing.T, path string) int {
	t.Helper()
	sc, closeFn, err := openFastq(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer closeFn()
	n := 0
	for sc.Next() {
		n++
	}
	return n
}

func testFilterConfig(dir string) seqlib.FilterConfig {
	return seqlib.FilterConfig{
		TruncQ:       2,
		MaxN:         0,
		MaxEEForward: 5,
		MaxEEReverse: 2,
		OutputDir:    dir,
		Threads:      2,
	}
}

func TestFilterReadsMonotonicShrink(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(1))

	counts := map[string]int{"S1": 100, "S2": 200}
	var pairs []seqlib.ReadFilePair
	for id, n := range counts {
		fwd := filepath.Join(dir, id+"_1.fastq.gz")
		rev := filepath.Join(dir, id+"_2.fastq.gz")
		writeFastqGz(t, fwd, goodReads(rng, n, 150))
		writeFastqGz(t, rev, goodReads(rng, n, 150))
		pairs = append(pairs, seqlib.ReadFilePair{SampleID: id, Forward: fwd, Reverse: rev})
	}

	lib := &Library{WorkDir: dir}
	outPairs, stats, err := lib.FilterReads(pairs, testFilterConfig(dir))
	if err != nil {
		t.Fatalf("FilterReads: %v", err)
	}
	if len(outPairs) != 2 || len(stats) != 2 {
		t.Fatalf("got %d pairs, %d stats, want 2 and 2", len(outPairs), len(stats))
	}
	// Deterministic order regardless of worker scheduling.
	if stats[0].SampleID != "S1" || stats[1].SampleID != "S2" {
		t.Fatalf("stats out of order: %+v", stats)
	}
	for _, s := range stats {
		if s.ReadsIn != counts[s.SampleID] {
			t.Errorf("sample %s: ReadsIn = %d, want %d", s.SampleID, s.ReadsIn, counts[s.SampleID])
		}
		if s.ReadsOut > s.ReadsIn {
			t.Errorf("sample %s: ReadsOut %d > ReadsIn %d", s.SampleID, s.ReadsOut, s.ReadsIn)
		}
	}
	if got := countFastqGz(t, outPairs[0].Forward); got != stats[0].ReadsOut {
		t.Errorf("filtered file has %d reads, stats say %d", got, stats[0].ReadsOut)
	}
}

func TestFilterDropsHighExpectedError(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(2))

	// Q3 per base gives ~0.5 expected errors each; 20 bases is ~10,
	// far over both budgets.
	bad := []readSpec{{seq: randomSeq(rng, 20), qual: strings.Repeat("$", 20)}}
	good := goodReads(rng, 1, 20)

	fwd := filepath.Join(dir, "S1_1.fastq.gz")
	rev := filepath.Join(dir, "S1_2.fastq.gz")
	writeFastqGz(t, fwd, append(good, bad...))
	writeFastqGz(t, rev, append(goodReads(rng, 1, 20), bad...))

	lib := &Library{WorkDir: dir}
	cfg := testFilterConfig(dir)
	cfg.TruncQ = 0
	_, stats, err := lib.FilterReads([]seqlib.ReadFilePair{{SampleID: "S1", Forward: fwd, Reverse: rev}}, cfg)
	if err != nil {
		t.Fatalf("FilterReads: %v", err)
	}
	if stats[0].ReadsIn != 2 || stats[0].ReadsOut != 1 {
		t.Fatalf("got in=%d out=%d, want in=2 out=1", stats[0].ReadsIn, stats[0].ReadsOut)
	}
}

func TestFilterDropsAmbiguousBases(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(3))

	withN := readSpec{seq: "ACGTN" + randomSeq(rng, 15), qual: strings.Repeat("I", 20)}
	fwd := filepath.Join(dir, "S1_1.fastq.gz")
	rev := filepath.Join(dir, "S1_2.fastq.gz")
	writeFastqGz(t, fwd, []readSpec{withN, goodReads(rng, 1, 20)[0]})
	writeFastqGz(t, rev, goodReads(rng, 2, 20))

	lib := &Library{WorkDir: dir}
	_, stats, err := lib.FilterReads([]seqlib.ReadFilePair{{SampleID: "S1", Forward: fwd, Reverse: rev}}, testFilterConfig(dir))
	if err != nil {
		t.Fatalf("FilterReads: %v", err)
	}
	if stats[0].ReadsOut != 1 {
		t.Fatalf("ReadsOut = %d, want 1 (N-containing pair dropped)", stats[0].ReadsOut)
	}
}

func TestFilterTruncatesAtLowQuality(t *testing.T) {
	dir := t.TempDir()

	// Quality drops to Q0 ('!') at cycle 6; with truncQ=2 the read is
	// cut to its first 5 bases.
	spec := readSpec{seq: "ACGTACGTAC", qual: "IIIII!IIII"}
	fwd := filepath.Join(dir, "S1_1.fastq.gz")
	rev := filepath.Join(dir, "S1_2.fastq.gz")
	writeFastqGz(t, fwd, []readSpec{spec})
	writeFastqGz(t, rev, []readSpec{{seq: "ACGTACGTAC", qual: "IIIIIIIIII"}})

	lib := &Library{WorkDir: dir}
	outPairs, _, err := lib.FilterReads([]seqlib.ReadFilePair{{SampleID: "S1", Forward: fwd, Reverse: rev}}, testFilterConfig(dir))
	if err != nil {
		t.Fatalf("FilterReads: %v", err)
	}

	sc, closeFn, err := openFastq(outPairs[0].Forward)
	if err != nil {
		t.Fatalf("opening filtered file: %v", err)
	}
	defer closeFn()
	if !sc.Next() {
		t.Fatal("filtered forward file is empty")
	}
	if got := sc.Seq().Len(); got != 5 {
		t.Errorf("truncated read length = %d, want 5", got)
	}
}

func TestFilterSkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(4))

	goodFwd := filepath.Join(dir, "GOOD_1.fastq.gz")
	goodRev := filepath.Join(dir, "GOOD_2.fastq.gz")
	writeFastqGz(t, goodFwd, goodReads(rng, 5, 50))
	writeFastqGz(t, goodRev, goodReads(rng, 5, 50))

	badFwd := filepath.Join(dir, "BAD_1.fastq.gz")
	if err := os.WriteFile(badFwd, []byte("this is not fastq\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pairs := []seqlib.ReadFilePair{
		{SampleID: "BAD", Forward: badFwd, Reverse: goodRev},
		{SampleID: "GOOD", Forward: goodFwd, Reverse: goodRev},
	}
	lib := &Library{WorkDir: dir}
	outPairs, stats, err := lib.FilterReads(pairs, testFilterConfig(dir))
	if err != nil {
		t.Fatalf("FilterReads should skip the bad sample, got error: %v", err)
	}
	if len(outPairs) != 1 || outPairs[0].SampleID != "GOOD" {
		t.Fatalf("surviving pairs = %+v, want just GOOD", outPairs)
	}
	if len(stats) != 1 || stats[0].SampleID != "GOOD" {
		t.Fatalf("stats = %+v, want just GOOD", stats)
	}
}

func TestFilterSkipsUnpairedFiles(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(6))

	shortFwd := filepath.Join(dir, "SHORT_1.fastq.gz")
	shortRev := filepath.Join(dir, "SHORT_2.fastq.gz")
	writeFastqGz(t, shortFwd, goodReads(rng, 3, 50))
	writeFastqGz(t, shortRev, goodReads(rng, 5, 50))

	longFwd := filepath.Join(dir, "LONG_1.fastq.gz")
	longRev := filepath.Join(dir, "LONG_2.fastq.gz")
	writeFastqGz(t, longFwd, goodReads(rng, 5, 50))
	writeFastqGz(t, longRev, goodReads(rng, 3, 50))

	okFwd := filepath.Join(dir, "OK_1.fastq.gz")
	okRev := filepath.Join(dir, "OK_2.fastq.gz")
	writeFastqGz(t, okFwd, goodReads(rng, 4, 50))
	writeFastqGz(t, okRev, goodReads(rng, 4, 50))

	pairs := []seqlib.ReadFilePair{
		{SampleID: "SHORT", Forward: shortFwd, Reverse: shortRev},
		{SampleID: "LONG", Forward: longFwd, Reverse: longRev},
		{SampleID: "OK", Forward: okFwd, Reverse: okRev},
	}
	lib := &Library{WorkDir: dir}
	outPairs, stats, err := lib.FilterReads(pairs, testFilterConfig(dir))
	if err != nil {
		t.Fatalf("FilterReads should skip mismatched samples, got error: %v", err)
	}
	// A mate-count mismatch in either direction drops the sample; it must
	// never survive as a silently truncated pairing.
	if len(outPairs) != 1 || outPairs[0].SampleID != "OK" {
		t.Fatalf("surviving pairs = %+v, want just OK", outPairs)
	}
	if len(stats) != 1 || stats[0].SampleID != "OK" || stats[0].ReadsIn != 4 {
		t.Fatalf("stats = %+v, want just OK with 4 reads in", stats)
	}
}

func TestFilterRemovesPhixReads(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(5))

	genome := randomSeq(rng, 500)
	phixFasta := filepath.Join(dir, "phix.fasta")
	if err := os.WriteFile(phixFasta, []byte(">phiX174\n"+genome+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	spike := readSpec{seq: genome[100:160], qual: strings.Repeat("I", 60)}
	genuine := goodReads(rng, 1, 60)[0]

	fwd := filepath.Join(dir, "S1_1.fastq.gz")
	rev := filepath.Join(dir, "S1_2.fastq.gz")
	writeFastqGz(t, fwd, []readSpec{spike, genuine})
	writeFastqGz(t, rev, goodReads(rng, 2, 60))

	cfg := testFilterConfig(dir)
	cfg.RemovePhix = true
	cfg.PhixFasta = phixFasta

	lib := &Library{WorkDir: dir}
	_, stats, err := lib.FilterReads([]seqlib.ReadFilePair{{SampleID: "S1", Forward: fwd, Reverse: rev}}, cfg)
	if err != nil {
		t.Fatalf("FilterReads: %v", err)
	}
	if stats[0].ReadsOut != 1 {
		t.Fatalf("ReadsOut = %d, want 1 (spike-in dropped)", stats[0].ReadsOut)
	}
}
