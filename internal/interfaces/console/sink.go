package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"tickcast/internal/application/port"
)

// Sink redraws a live quote line on every publish.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
	f   *Formatter
}

func NewSink(out io.Writer) *Sink {
	if out == nil {
		out = os.Stdout
	}
	return &Sink{out: out, f: NewFormatter()}
}

func (s *Sink) PublishQuotes(_ context.Context, _ int64, quotes map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, s.f.Render(quotes, RenderLive)) // no newline
	return err
}

// WriteSnapshot prints a timestamped line, framed by blank lines so the
// live line is not overwritten.
func (s *Sink) WriteSnapshot(ts time.Time, quotes map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), s.f.Render(quotes, RenderSnapshot))
	return err
}

var _ port.QuoteSink = (*Sink)(nil)
