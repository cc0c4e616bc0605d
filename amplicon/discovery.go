package amplicon

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gmaffy/amplicon-whisperer/seqlib"
)

// DiscoverSamples lists the paired read files under dir and pairs them by
// SampleID, the file-name prefix before the first underscore. Both lists
// are sorted lexicographically so pairing is deterministic. Any count or
// identity mismatch is a DiscoveryError; nothing has run yet at that
// point, so the whole run aborts.
func DiscoverSamples(dir, fwdSuffix, revSuffix string) ([]seqlib.ReadFilePair, error) {
	fwdFiles, err := filepath.Glob(filepath.Join(dir, "*"+fwdSuffix))
	if err != nil {
		return nil, err
	}
	revFiles, err := filepath.Glob(filepath.Join(dir, "*"+revSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(fwdFiles)
	sort.Strings(revFiles)

	if len(fwdFiles) == 0 {
		return nil, &DiscoveryError{Dir: dir, Reason: fmt.Sprintf("no files match *%s", fwdSuffix)}
	}
	if len(fwdFiles) != len(revFiles) {
		return nil, &DiscoveryError{Dir: dir, Reason: fmt.Sprintf("%d forward files but %d reverse files", len(fwdFiles), len(revFiles))}
	}

	seen := make(map[string]bool, len(fwdFiles))
	pairs := make([]seqlib.ReadFilePair, 0, len(fwdFiles))
	for i := range fwdFiles {
		fwdID := sampleID(fwdFiles[i])
		revID := sampleID(revFiles[i])
		if fwdID != revID {
			return nil, &DiscoveryError{Dir: dir, Reason: fmt.Sprintf("forward sample %q does not pair with reverse sample %q", fwdID, revID)}
		}
		if seen[fwdID] {
			return nil, &DiscoveryError{Dir: dir, Reason: fmt.Sprintf("duplicate sample ID %q", fwdID)}
		}
		seen[fwdID] = true
		pairs = append(pairs, seqlib.ReadFilePair{SampleID: fwdID, Forward: fwdFiles[i], Reverse: revFiles[i]})
	}
	return pairs, nil
}

func sampleID(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "_"); i >= 0 {
		return base[:i]
	}
	return base
}
