package seqlib

import "strings"

// CanonicalRanks is the classification hierarchy in order, as named by
// standard 16S training sets.
var CanonicalRanks = []string{"Kingdom", "Phylum", "Class", "Order", "Family", "Genus", "Species"}

// RanksTo returns the hierarchy down to and including maxRank, or nil if
// the rank is unknown.
func RanksTo(maxRank string) []string {
	for i, r := range CanonicalRanks {
		if strings.EqualFold(r, maxRank) {
			return CanonicalRanks[:i+1]
		}
	}
	return nil
}
