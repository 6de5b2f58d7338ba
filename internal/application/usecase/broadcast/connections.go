package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"tickcast/internal/application/port"
)

// Entry is one (user, connection) pair of a registry snapshot.
type Entry struct {
	UserID int64
	Conn   port.Conn
}

// Connections maps a user id to at most one live push connection.
type Connections struct {
	gate port.TokenValidator

	mu    sync.RWMutex
	conns map[int64]port.Conn
}

func NewConnections(gate port.TokenValidator) *Connections {
	return &Connections{
		gate:  gate,
		conns: make(map[int64]port.Conn),
	}
}

// Register validates token and installs conn for the resolved user.
// On failure conn is closed and nothing is installed. A previous
// connection for the same user is superseded and closed.
func (c *Connections) Register(ctx context.Context, token string, conn port.Conn) (int64, error) {
	userID, err := c.gate.Validate(ctx, token)
	if err != nil {
		_ = conn.Close()
		return 0, err
	}

	c.mu.Lock()
	prev := c.conns[userID]
	c.conns[userID] = conn
	c.mu.Unlock()

	if prev != nil && prev != conn {
		log.Info().
			Int64("user_id", userID).
			Str("conn", prev.ID()).
			Msg("superseding previous connection")
		_ = prev.Close()
	}
	return userID, nil
}

// Unregister removes the entry for userID only if it still holds conn,
// so a late disconnect of a superseded connection is a no-op.
func (c *Connections) Unregister(userID int64, conn port.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.conns[userID]
	if !ok || cur != conn {
		return false
	}
	delete(c.conns, userID)
	return true
}

// Snapshot returns the registry ordered by user id.
func (c *Connections) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.conns))
	for id, conn := range c.conns {
		out = append(out, Entry{UserID: id, Conn: conn})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// CloseAll drops every entry and closes its connection.
func (c *Connections) CloseAll() {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[int64]port.Conn)
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
