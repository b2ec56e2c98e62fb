package processor

import (
	"fmt"
	"strings"
	"time"
)

// EmptyResultError reports a time query that matched no tile.
type EmptyResultError struct {
	Start, End *time.Time
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no tiles found between %s and %s", formatBound(e.Start), formatBound(e.End))
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.Format(time.RFC3339)
}

// BatchError collects the tiles of a batch that could not be read.
type BatchError struct {
	Failures []*TileResult
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Err.Error()
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Err.Error())
	}
	return fmt.Sprintf("%d tiles failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Failures returns the results that carry an error.
func Failures(results []*TileResult) []*TileResult {
	var failed []*TileResult
	for _, r := range results {
		if r != nil && r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckResults folds the per tile errors of a batch into a *BatchError, or
// returns nil when every tile was read.
func CheckResults(results []*TileResult) error {
	failed := Failures(results)
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{Failures: failed}
}
