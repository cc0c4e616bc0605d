package amplicon

import (
	"fmt"
	"strings"
)

// DiscoveryError means the input directory does not yield a clean 1:1
// forward/reverse pairing. Nothing has been processed when it is raised.
type DiscoveryError struct {
	Dir    string
	Reason string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("sample discovery in %s: %s", e.Dir, e.Reason)
}

// TrackingMismatchError means the SampleID sets of checkpointed stages
// disagree, which signals a corrupted or mixed-run checkpoint set.
type TrackingMismatchError struct {
	Stage   string
	Missing []string
}

func (e *TrackingMismatchError) Error() string {
	return fmt.Sprintf("stage %s is missing samples: %s", e.Stage, strings.Join(e.Missing, ", "))
}

// StageError reports which stage failed and which checkpoint was last
// written, so the operator knows where to resume from.
type StageError struct {
	Stage          Stage
	LastCheckpoint string
	Err            error
}

func (e *StageError) Error() string {
	if e.LastCheckpoint == "" {
		return fmt.Sprintf("stage %s failed before any checkpoint was written: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed (last checkpoint: %s): %v", e.Stage, e.LastCheckpoint, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
