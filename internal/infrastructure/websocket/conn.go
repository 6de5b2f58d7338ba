package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tickcast/internal/application/port"
	"tickcast/internal/domain"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	closeWait    = time.Second
)

var ErrClosed = errors.New("websocket connection closed")

// Conn adapts a gorilla connection to port.Conn. Writes are serialised;
// gorilla allows one concurrent writer only.
type Conn struct {
	id string
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Push(ctx context.Context, p domain.Projection) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(readTimeout)
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Close sends a close frame and tears down the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		err = c.ws.Close()
	})
	return err
}

// ReadLoop keeps the connection alive: it answers pings, sends our own,
// and discards inbound payloads. It returns when the peer goes away,
// ctx is cancelled or Close is called.
func (c *Conn) ReadLoop(ctx context.Context) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			if _, _, err := c.ws.ReadMessage(); err != nil {
				errCh <- err
				return
			}
			_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			// WriteControl may run concurrently with WriteMessage; taking
			// writeMu here would let a stuck ping outlive a push deadline.
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return err
			}
		}
	}
}

var _ port.Conn = (*Conn)(nil)
