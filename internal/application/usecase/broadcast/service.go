package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tickcast/internal/application/port"
	"tickcast/internal/domain"
	dsvc "tickcast/internal/domain/service"
)

const (
	defaultInterval      = time.Second
	defaultPushTimeout   = 500 * time.Millisecond
	defaultSinkTimeout   = 250 * time.Millisecond
	defaultFanoutWorkers = 16
)

type ServiceDeps struct {
	Book          *domain.PriceBook
	Walk          *dsvc.RandomWalk
	Subscriptions *Subscriptions
	Connections   *Connections
	Sink          port.QuoteSink // optional

	Interval      time.Duration
	PushTimeout   time.Duration
	SinkTimeout   time.Duration
	FanoutWorkers int
}

// TickStats summarises one fan-out pass.
type TickStats struct {
	Connections int
	Pushed      int
	Skipped     int
	Failed      int
}

// Service is the broadcast scheduler. It is the only writer of the price
// book and only reads the two registries.
type Service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.PushTimeout <= 0 {
		deps.PushTimeout = defaultPushTimeout
	}
	if deps.SinkTimeout <= 0 {
		deps.SinkTimeout = defaultSinkTimeout
	}
	if deps.FanoutWorkers <= 0 {
		deps.FanoutWorkers = defaultFanoutWorkers
	}
	// A tick waits for its slowest push and then the sink; both must end
	// before the next boundary or a stuck peer delays everyone else.
	if deps.PushTimeout+deps.SinkTimeout >= deps.Interval {
		log.Warn().
			Dur("interval", deps.Interval).
			Dur("push_timeout", deps.PushTimeout).
			Dur("sink_timeout", deps.SinkTimeout).
			Msg("timeouts exceed the tick interval, clamping")
		deps.PushTimeout = deps.Interval / 2
		deps.SinkTimeout = deps.Interval / 4
	}
	return &Service{deps: deps}
}

// Run ticks at a fixed rate until ctx is done. A tick that overruns the
// interval causes the missed boundaries to be dropped, not queued.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Book == nil || s.deps.Walk == nil || s.deps.Subscriptions == nil || s.deps.Connections == nil {
		return errors.New("broadcast service: missing dependency")
	}

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.deps.Interval).
		Dur("push_timeout", s.deps.PushTimeout).
		Int("fanout_workers", s.deps.FanoutWorkers).
		Msg("broadcast started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			st := s.Tick(ctx, now)
			if st.Connections > 0 {
				log.Debug().
					Int("connections", st.Connections).
					Int("pushed", st.Pushed).
					Int("skipped", st.Skipped).
					Int("failed", st.Failed).
					Msg("tick")
			}
		}
	}
}

// Tick runs one mutate-then-fan-out cycle.
func (s *Service) Tick(ctx context.Context, now time.Time) TickStats {
	s.deps.Walk.Advance(s.deps.Book)

	entries := s.deps.Connections.Snapshot()
	st := TickStats{Connections: len(entries)}

	var pushed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.deps.FanoutWorkers)

	for _, e := range entries {
		subs := s.deps.Subscriptions.Get(e.UserID)
		if len(subs) == 0 {
			st.Skipped++
			continue
		}
		proj := s.deps.Book.Project(subs)
		g.Go(func() error {
			if err := s.push(ctx, e, proj); err != nil {
				failed.Add(1)
				return nil
			}
			pushed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	st.Pushed = int(pushed.Load())
	st.Failed = int(failed.Load())

	s.publish(ctx, now)
	return st
}

// push delivers one projection. Failure is handled as a disconnect.
func (s *Service) push(ctx context.Context, e Entry, p domain.Projection) error {
	pctx, cancel := context.WithTimeout(ctx, s.deps.PushTimeout)
	defer cancel()

	err := e.Conn.Push(pctx, p)
	if err == nil {
		return nil
	}
	if s.deps.Connections.Unregister(e.UserID, e.Conn) {
		log.Warn().
			Err(err).
			Int64("user_id", e.UserID).
			Str("conn", e.Conn.ID()).
			Int("active", s.deps.Connections.Len()).
			Msg("push failed, dropping connection")
	}
	_ = e.Conn.Close()
	return err
}

func (s *Service) publish(ctx context.Context, now time.Time) {
	if s.deps.Sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, s.deps.SinkTimeout)
	defer cancel()
	if err := s.deps.Sink.PublishQuotes(sctx, now.UnixMilli(), s.deps.Book.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("quote sink publish failed")
	}
}
