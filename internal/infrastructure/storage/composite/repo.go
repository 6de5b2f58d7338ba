package composite

import (
	"context"

	"tickcast/internal/application/port"
)

// Sink fans one publish out to every configured quote sink.
type Sink struct {
	sinks []port.QuoteSink
}

func New(sinks ...port.QuoteSink) *Sink {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.QuoteSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Sink{sinks: out}
}

func (s *Sink) Len() int { return len(s.sinks) }

// PublishQuotes calls every sink even when one fails and reports the first error.
func (s *Sink) PublishQuotes(ctx context.Context, ts int64, quotes map[string]float64) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.PublishQuotes(ctx, ts, quotes); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.QuoteSink = (*Sink)(nil)
