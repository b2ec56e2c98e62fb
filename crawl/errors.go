package crawl

import "fmt"

// DateParseError is returned when an included path does not yield a valid
// calendar date. It aborts catalog construction.
type DateParseError struct {
	Path   string
	Reason string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("cannot resolve date of %s: %s", e.Path, e.Reason)
}
