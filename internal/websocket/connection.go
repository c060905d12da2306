package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lounge/pkg/protocol"
)

// Conn wraps one client socket. All writes funnel through a single writer
// goroutine; gorilla connections do not allow concurrent writers.
type Conn struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time

	writeCh chan []byte
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once

	mu          sync.RWMutex
	username    string
	alive       bool
	lastPingSeq int
}

const writeBuffer = 64

// NewConn creates the wrapper and starts its writer goroutine. The id is
// assigned by the server and is the authoritative sender identity for the
// socket's whole lifetime.
func NewConn(id string, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:          id,
		conn:        conn,
		connectedAt: time.Now(),
		writeCh:     make(chan []byte, writeBuffer),
		ctx:         ctx,
		cancel:      cancel,
		alive:       true,
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send serializes and queues an envelope. Delivery is best-effort: a closed
// connection or a full write buffer yields an error, never a block.
func (c *Conn) Send(env *protocol.Envelope) error {
	data, err := env.Serialize()
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw queues a pre-encoded frame, used when one broadcast payload is
// fanned out to many sockets.
func (c *Conn) SendRaw(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrWriteBufferFull
	}
}

// Ping sends a low-level ping control frame for the liveness sweep.
func (c *Conn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Close terminates the socket after attempting a close frame with the given
// code. Safe to call from any goroutine, idempotent.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection has been terminated.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Conn) ID() string             { return c.id }
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

func (c *Conn) SetUsername(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = name
}

func (c *Conn) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// MarkAlive records pong receipt; the sweeper clears the flag at the start
// of each sweep and terminates sessions still cleared at the next one.
func (c *Conn) MarkAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
}

func (c *Conn) ClearAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
}

func (c *Conn) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// SetLastPingSeq records the most recent heartbeat sequence echoed to this
// session.
func (c *Conn) SetLastPingSeq(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPingSeq = seq
}

func (c *Conn) LastPingSeq() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPingSeq
}
