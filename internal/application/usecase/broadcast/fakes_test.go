package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"tickcast/internal/application/port"
	"tickcast/internal/domain"
	dsvc "tickcast/internal/domain/service"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   []domain.Projection
	closed bool
	err    error // returned by Push when set
	block  bool  // Push waits for ctx
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Push(ctx context.Context, p domain.Projection) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Messages() []domain.Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Projection, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// knownUsers accepts numeric tokens present in the set.
type knownUsers map[int64]bool

func (k knownUsers) Validate(_ context.Context, token string) (int64, error) {
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, port.ErrInvalidToken
	}
	if !k[id] {
		return 0, port.ErrUnknownUser
	}
	return id, nil
}

type recordingSink struct {
	mu    sync.Mutex
	calls []map[string]float64
	err   error
}

func (s *recordingSink) PublishQuotes(_ context.Context, _ int64, quotes map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, quotes)
	return s.err
}

type fixture struct {
	catalog *domain.Catalog
	book    *domain.PriceBook
	subs    *Subscriptions
	conns   *Connections
	sink    *recordingSink
	svc     *Service
}

func newFixture(t *testing.T, symbols []string, users ...int64) *fixture {
	t.Helper()
	catalog, err := domain.NewCatalog(symbols)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	book := domain.NewPriceBook(catalog.Symbols(), func(string) float64 { return 125 })
	walk, err := dsvc.NewRandomWalk(0.001, rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	known := knownUsers{}
	for _, u := range users {
		known[u] = true
	}
	f := &fixture{
		catalog: catalog,
		book:    book,
		subs:    NewSubscriptions(catalog),
		conns:   NewConnections(known),
		sink:    &recordingSink{},
	}
	f.svc = NewService(ServiceDeps{
		Book:          book,
		Walk:          walk,
		Subscriptions: f.subs,
		Connections:   f.conns,
		Sink:          f.sink,
		PushTimeout:   50 * time.Millisecond,
	})
	return f
}

func (f *fixture) connect(t *testing.T, userID int64) *fakeConn {
	t.Helper()
	c := newFakeConn(fmt.Sprintf("conn-%d-%d", userID, rand.IntN(1<<30)))
	if _, err := f.conns.Register(context.Background(), strconv.FormatInt(userID, 10), c); err != nil {
		t.Fatalf("register %d: %v", userID, err)
	}
	return c
}
