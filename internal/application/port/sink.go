package port

import "context"

// QuoteSink receives the full price book once per tick, after fan-out.
// Sinks are outbound mirrors only; nothing they hold flows back into the core.
type QuoteSink interface {
	PublishQuotes(ctx context.Context, ts int64, quotes map[string]float64) error
}
