package audit

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MultiSink writes each record to several sinks concurrently
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that fans out to sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write writes rec to every sink and returns the first error. A failing sink
// does not cancel the others.
func (m *MultiSink) Write(ctx context.Context, rec *Record) error {
	var g errgroup.Group
	for _, sink := range m.sinks {
		sink := sink
		g.Go(func() error {
			return sink.Write(ctx, rec)
		})
	}
	return g.Wait()
}
