package cissync

import "fmt"

// computeRunStatus derives the terminal status of a run from its counters.
// The ratio thresholds use strict comparisons, implemented in integer
// arithmetic so the boundaries are exact:
//
//	failed == processed or failed/processed > 0.9  -> failed
//	failed/processed > 0.1                         -> partial
//	otherwise (including processed == 0)           -> success
//
// An explicit run error overrides the computed status to failed regardless
// of counters. Ratio-based classification tolerates the legacy source's
// known data-quality noise while still surfacing systemic breakage.
func computeRunStatus(processed, failed int64, runErr error) (RunStatus, *string) {
	if runErr != nil {
		msg := runErr.Error()
		return RunFailed, &msg
	}
	if processed == 0 {
		// Nothing to do is not a failure.
		return RunSuccess, nil
	}
	if failed == processed || 10*failed > 9*processed {
		msg := fmt.Sprintf("sync failed: %d of %d records failed", failed, processed)
		return RunFailed, &msg
	}
	if 10*failed > processed {
		msg := fmt.Sprintf("partial sync: %d of %d records failed", failed, processed)
		return RunPartial, &msg
	}
	return RunSuccess, nil
}
