// Package sink composes output destinations for decoded payload bytes.
package sink

import (
	"io"

	"github.com/robotalks/itmdump/pkg/run"
)

// Tee fans every write out to all sinks. Each sink gets the full payload
// even when another sink fails; failures are aggregated for the caller to
// report.
type Tee struct {
	Writers []io.Writer
}

// NewTee creates a Tee over the given writers.
func NewTee(writers ...io.Writer) *Tee {
	return &Tee{Writers: writers}
}

// Write implements io.Writer.
func (t *Tee) Write(p []byte) (int, error) {
	var errs run.AggregatedError
	for _, w := range t.Writers {
		if _, err := w.Write(p); err != nil {
			errs.Add(err)
		}
	}
	return len(p), errs.Aggregate()
}
