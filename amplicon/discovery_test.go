package amplicon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("@r\nACGT\n+\nIIII\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSamplesPairsOneToOne(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"S2_1.fastq.gz", "S2_2.fastq.gz", "S1_1.fastq.gz", "S1_2.fastq.gz", "notes.txt"} {
		touch(t, dir, name)
	}

	pairs, err := DiscoverSamples(dir, "_1.fastq.gz", "_2.fastq.gz")
	if err != nil {
		t.Fatalf("DiscoverSamples: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	if pairs[0].SampleID != "S1" || pairs[1].SampleID != "S2" {
		t.Errorf("pair order = %s, %s; want S1, S2", pairs[0].SampleID, pairs[1].SampleID)
	}
	if filepath.Base(pairs[0].Forward) != "S1_1.fastq.gz" || filepath.Base(pairs[0].Reverse) != "S1_2.fastq.gz" {
		t.Errorf("S1 pair = %+v", pairs[0])
	}
}

func TestDiscoverSamplesCountMismatch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"S1_1.fastq.gz", "S1_2.fastq.gz", "S2_1.fastq.gz"} {
		touch(t, dir, name)
	}

	_, err := DiscoverSamples(dir, "_1.fastq.gz", "_2.fastq.gz")
	var dErr *DiscoveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("got %v, want DiscoveryError", err)
	}
}

func TestDiscoverSamplesIdentityMismatch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"S1_1.fastq.gz", "S3_2.fastq.gz"} {
		touch(t, dir, name)
	}

	_, err := DiscoverSamples(dir, "_1.fastq.gz", "_2.fastq.gz")
	var dErr *DiscoveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("got %v, want DiscoveryError", err)
	}
}

func TestDiscoverSamplesEmptyDir(t *testing.T) {
	_, err := DiscoverSamples(t.TempDir(), "_1.fastq.gz", "_2.fastq.gz")
	var dErr *DiscoveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("got %v, want DiscoveryError", err)
	}
}
