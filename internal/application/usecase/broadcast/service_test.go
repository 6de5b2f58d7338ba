package broadcast

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"
)

var twoDecimals = regexp.MustCompile(`^\d+\.\d{2}$`)

func TestTickPushesOnlySubscribedSymbols(t *testing.T) {
	f := newFixture(t, []string{"GOOG", "TSLA"}, 1)
	f.subs.Subscribe(1, "GOOG")
	c := f.connect(t, 1)

	st := f.svc.Tick(context.Background(), time.Now())
	if st.Pushed != 1 {
		t.Fatalf("expected 1 push, got %+v", st)
	}

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if len(m) != 1 {
		t.Fatalf("expected only GOOG, got %v", m)
	}
	if _, ok := m["TSLA"]; ok {
		t.Errorf("TSLA must not be pushed")
	}
	if !twoDecimals.MatchString(m["GOOG"]) {
		t.Errorf("expected two-decimal price, got %q", m["GOOG"])
	}
}

func TestTickExactKeysEveryTick(t *testing.T) {
	f := newFixture(t, []string{"GOOG", "TSLA", "AMZN"}, 1)
	f.subs.Subscribe(1, "GOOG")
	f.subs.Subscribe(1, "AMZN")
	c := f.connect(t, 1)

	for i := 0; i < 5; i++ {
		f.svc.Tick(context.Background(), time.Now())
	}

	msgs := c.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if len(m) != 2 {
			t.Errorf("tick %d: expected 2 keys, got %v", i, m)
		}
		for _, sym := range []string{"GOOG", "AMZN"} {
			if !twoDecimals.MatchString(m[sym]) {
				t.Errorf("tick %d: %s = %q", i, sym, m[sym])
			}
		}
	}
}

func TestTickSkipsEmptySubscriptions(t *testing.T) {
	f := newFixture(t, []string{"GOOG"}, 7)
	f.subs.Ensure(7)
	c := f.connect(t, 7)

	for i := 0; i < 5; i++ {
		st := f.svc.Tick(context.Background(), time.Now())
		if st.Skipped != 1 || st.Pushed != 0 {
			t.Fatalf("tick %d: unexpected stats %+v", i, st)
		}
	}
	if n := len(c.Messages()); n != 0 {
		t.Errorf("expected 0 messages, got %d", n)
	}
}

func TestTickAdvancesPricesOnce(t *testing.T) {
	f := newFixture(t, []string{"GOOG"})
	before, _ := f.book.Get("GOOG")
	f.svc.Tick(context.Background(), time.Now())
	after, _ := f.book.Get("GOOG")
	if before == after {
		t.Skip("random walk landed on r=0")
	}
	ratio := after / before
	if ratio < 0.999 || ratio > 1.001 {
		t.Errorf("ratio %v out of bounds", ratio)
	}
}

func TestPushFailureDropsOnlyThatConnection(t *testing.T) {
	f := newFixture(t, []string{"GOOG"}, 1, 2)
	f.subs.Subscribe(1, "GOOG")
	f.subs.Subscribe(2, "GOOG")
	broken := f.connect(t, 1)
	broken.err = errors.New("broken pipe")
	healthy := f.connect(t, 2)

	st := f.svc.Tick(context.Background(), time.Now())
	if st.Failed != 1 || st.Pushed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if len(healthy.Messages()) != 1 {
		t.Errorf("healthy connection should still receive the tick")
	}
	if !broken.Closed() {
		t.Errorf("failed connection should be closed")
	}
	snap := f.conns.Snapshot()
	if len(snap) != 1 || snap[0].UserID != 2 {
		t.Errorf("expected only user 2 registered, got %+v", snap)
	}
}

func TestPushTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(t, []string{"GOOG"}, 1)
	f.subs.Subscribe(1, "GOOG")
	slow := f.connect(t, 1)
	slow.block = true

	start := time.Now()
	st := f.svc.Tick(context.Background(), time.Now())
	if st.Failed != 1 {
		t.Fatalf("expected timeout failure, got %+v", st)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("push timeout not bounded")
	}
	if f.conns.Len() != 0 {
		t.Errorf("timed-out connection should be unregistered")
	}
}

func TestClientLocalUnsubscribeDoesNotAffectServer(t *testing.T) {
	f := newFixture(t, []string{"GOOG", "TSLA"}, 3)
	f.subs.Subscribe(3, "GOOG")
	c := f.connect(t, 3)

	// the client hides GOOG locally and never tells the server
	f.svc.Tick(context.Background(), time.Now())
	if _, ok := c.Messages()[0]["GOOG"]; !ok {
		t.Fatalf("GOOG must still be pushed after a client-local removal")
	}

	// an explicit server-side unsubscribe stops it
	f.subs.Unsubscribe(3, "GOOG")
	f.svc.Tick(context.Background(), time.Now())
	if n := len(c.Messages()); n != 1 {
		t.Errorf("expected no further messages after unsubscribe, got %d", n)
	}
}

func TestTickPublishesToSink(t *testing.T) {
	f := newFixture(t, []string{"GOOG", "TSLA"})
	f.sink.err = errors.New("sink down")

	f.svc.Tick(context.Background(), time.Now())

	if len(f.sink.calls) != 1 {
		t.Fatalf("expected 1 sink call, got %d", len(f.sink.calls))
	}
	if len(f.sink.calls[0]) != 2 {
		t.Errorf("expected full book, got %v", f.sink.calls[0])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, []string{"GOOG"}, 1)
	f.subs.Subscribe(1, "GOOG")
	c := f.connect(t, 1)

	svc := NewService(ServiceDeps{
		Book:          f.book,
		Walk:          f.svc.deps.Walk,
		Subscriptions: f.subs,
		Connections:   f.conns,
		Interval:      10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if n := len(c.Messages()); n < 3 {
		t.Errorf("expected several ticks, got %d", n)
	}
}

func TestRunRequiresDependencies(t *testing.T) {
	if err := NewService(ServiceDeps{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestTickConcurrentWithMutators(t *testing.T) {
	users := make([]int64, 0, 20)
	for i := int64(1); i <= 20; i++ {
		users = append(users, i)
	}
	f := newFixture(t, []string{"GOOG", "TSLA", "AMZN"}, users...)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			syms := []string{"GOOG", "TSLA", "AMZN"}
			for i := 0; ctx.Err() == nil && i < 200; i++ {
				f.subs.Subscribe(u, syms[i%3])
				c := newFakeConn(strconv.Itoa(i))
				f.conns.Register(context.Background(), strconv.FormatInt(u, 10), c)
				if i%3 == 0 {
					f.conns.Unregister(u, c)
				}
			}
		}(u)
	}

	for i := 0; i < 20; i++ {
		f.svc.Tick(ctx, time.Now())
	}
	cancel()
	wg.Wait()

	for _, e := range f.conns.Snapshot() {
		if e.Conn == nil {
			t.Fatalf("half-registered entry for user %d", e.UserID)
		}
	}
}

func TestNewServiceClampsTimeoutsToInterval(t *testing.T) {
	svc := NewService(ServiceDeps{
		Interval:    100 * time.Millisecond,
		PushTimeout: 200 * time.Millisecond,
		SinkTimeout: 50 * time.Millisecond,
	})
	if got := svc.deps.PushTimeout + svc.deps.SinkTimeout; got >= svc.deps.Interval {
		t.Fatalf("push %v + sink %v must stay below interval %v", svc.deps.PushTimeout, svc.deps.SinkTimeout, svc.deps.Interval)
	}

	// timeouts that already fit are kept
	svc = NewService(ServiceDeps{
		Interval:    time.Second,
		PushTimeout: 300 * time.Millisecond,
		SinkTimeout: 100 * time.Millisecond,
	})
	if svc.deps.PushTimeout != 300*time.Millisecond || svc.deps.SinkTimeout != 100*time.Millisecond {
		t.Errorf("valid timeouts were changed: %+v", svc.deps)
	}
}

func TestRunStuckPeerDoesNotDelayOthers(t *testing.T) {
	f := newFixture(t, []string{"GOOG", "TSLA"}, 1, 2)
	f.subs.Subscribe(1, "GOOG")
	f.subs.Subscribe(2, "TSLA")
	healthy := f.connect(t, 1)

	const interval = 100 * time.Millisecond
	svc := NewService(ServiceDeps{
		Book:          f.book,
		Walk:          f.svc.deps.Walk,
		Subscriptions: f.subs,
		Connections:   f.conns,
		Interval:      interval,
		PushTimeout:   2 * interval, // clamped below the interval
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*interval+interval/2)
	defer cancel()

	// user 2 never reads and reconnects every time it is dropped
	go func() {
		for i := 0; ctx.Err() == nil; i++ {
			if f.conns.Len() < 2 {
				stuck := newFakeConn("stuck-" + strconv.Itoa(i))
				stuck.block = true
				f.conns.Register(context.Background(), "2", stuck)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	start := time.Now()
	_ = svc.Run(ctx)
	ticks := int(time.Since(start) / interval)

	if n := len(healthy.Messages()); n < ticks-2 {
		t.Errorf("healthy user received %d messages over %d ticks", n, ticks)
	}
}
