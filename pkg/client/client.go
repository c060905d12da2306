package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lounge/pkg/protocol"
)

// Config parameterizes a connection manager. Zero values fall back to the
// defaults below.
type Config struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string

	HeartbeatInterval time.Duration // PING cadence once connected
	HeartbeatTimeout  time.Duration // armed after each PING; fatal on expiry
	ReconnectBase     time.Duration // backoff unit: base × min(attempt, 5)
	MaxReconnects     int           // attempts before giving up

	Logger zerolog.Logger
}

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultReconnectBase     = time.Second
	DefaultMaxReconnects     = 10

	// backoffCap bounds the backoff multiplier: attempts beyond the fifth
	// all wait base × 5.
	backoffCap = 5
)

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = DefaultMaxReconnects
	}
	return cfg
}

// Handler consumes one dispatched envelope. Handlers run on the read
// goroutine and should return quickly.
type Handler func(env *protocol.Envelope)

// StateHandler observes state transitions as (new, previous).
type StateHandler func(state, previous State)

// Client owns one WebSocket connection to the lounge server: the connect /
// reconnect state machine, the heartbeat, and typed publish/subscribe
// dispatch. Construct once with New and share by reference; Close releases
// every timer and subscription.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	state         State
	sessionID     string
	conn          *websocket.Conn
	gen           int // connection generation; stale goroutines check it
	attempts      int
	pingSeq       int
	autoReconnect bool
	closed        bool

	heartbeatTicker *time.Ticker
	heartbeatStop   chan struct{}
	pongTimer       *time.Timer
	reconnectTimer  *time.Timer

	writeMu sync.Mutex

	subsMu    sync.RWMutex
	subs      map[string]map[int]Handler
	stateSubs map[int]StateHandler
	nextSubID int
}

func New(cfg Config) *Client {
	resolved := cfg.withDefaults()
	return &Client{
		cfg:       resolved,
		log:       resolved.Logger.With().Str("component", "client").Logger(),
		state:     StateDisconnected,
		subs:      make(map[string]map[int]Handler),
		stateSubs: make(map[int]StateHandler),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned identity, or "" before the CONNECT
// envelope arrives.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// BackoffDelay returns the reconnect delay for the given attempt count:
// base × min(attempt, 5).
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt > backoffCap {
		attempt = backoffCap
	}
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// Connect starts the connection attempt and enables auto-reconnect. It
// returns once the socket is dialed; the transition to connected happens
// when the server's CONNECT envelope arrives.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.closed = false
	c.autoReconnect = true
	c.attempts = 0
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify(changed)

	return c.dial(ctx)
}

// dial opens the socket and starts the read loop. On failure it hands off
// to the reconnect path.
func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.log.Warn().Err(err).Str("url", c.cfg.URL).Msg("dial failed")
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onConnectionLost(gen, err)
			return
		}

		env, perr := protocol.Parse(data)
		if perr != nil {
			// Malformed server frames are logged and dropped; they must
			// never take down the read loop.
			c.log.Warn().Err(perr).Msg("dropped invalid envelope")
			continue
		}
		c.handleEnvelope(env, gen)
	}
}

func (c *Client) handleEnvelope(env *protocol.Envelope, gen int) {
	switch env.Type {
	case protocol.TypeSystemConnect:
		var connect protocol.ConnectPayload
		if err := env.Decode(&connect); err != nil {
			c.log.Warn().Err(err).Msg("bad connect payload")
			return
		}
		c.onConnected(connect.ID, gen)

	case protocol.TypeSystemPong:
		c.onPong()
	}

	c.dispatch(env)
}

func (c *Client) onConnected(sessionID string, gen int) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.sessionID = sessionID
	c.attempts = 0
	changed := c.setStateLocked(StateConnected)
	c.startHeartbeatLocked(gen)
	c.mu.Unlock()
	notify(changed)

	c.log.Info().Str("sessionId", sessionID).Msg("connected")
}

// onConnectionLost runs when the read loop dies. An intentional disconnect
// ends in disconnected; anything else enters the reconnect path.
func (c *Client) onConnectionLost(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return // a newer connection superseded this one
	}
	c.stopHeartbeatLocked()
	c.conn = nil
	c.sessionID = ""
	if c.closed || !c.autoReconnect {
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify(changed)
		return
	}
	c.mu.Unlock()

	c.log.Warn().Err(err).Msg("connection lost")
	c.scheduleReconnect()
}

// scheduleReconnect increments the attempt counter and arms the backoff
// timer, or gives up into disconnected past the attempt limit.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || !c.autoReconnect {
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify(changed)
		return
	}
	c.attempts++
	if c.attempts > c.cfg.MaxReconnects {
		c.log.Error().Int("attempts", c.attempts-1).Msg("reconnect attempts exhausted")
		c.autoReconnect = false
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify(changed)
		return
	}
	delay := BackoffDelay(c.cfg.ReconnectBase, c.attempts)
	changed := c.setStateLocked(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || !c.autoReconnect {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		_ = c.dial(context.Background())
	})
	attempt := c.attempts
	c.mu.Unlock()
	notify(changed)

	c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
}

// Disconnect closes the connection intentionally and suppresses
// auto-reconnect from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.autoReconnect = false
	c.stopHeartbeatLocked()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.sessionID = ""
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	notify(changed)

	if conn != nil {
		msg := websocket.FormatCloseMessage(protocol.CloseNormal, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Close disconnects and permanently releases the client: all timers are
// cancelled and all subscriptions removed. The client is not reusable
// afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()

	c.subsMu.Lock()
	c.subs = make(map[string]map[int]Handler)
	c.stateSubs = make(map[int]StateHandler)
	c.subsMu.Unlock()
}

// Send publishes an envelope with the session identity as sender. It fails
// without touching the wire when the client is not connected or the server
// has not assigned an id yet.
func (c *Client) Send(msgType string, payload interface{}) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	conn := c.conn
	sender := c.sessionID
	c.mu.Unlock()

	env, err := protocol.NewEnvelope(msgType, payload, sender)
	if err != nil {
		return err
	}
	data, err := env.Serialize()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Subscribe registers a handler for an exact message type, or for every
// non-system type via protocol.TypeWildcard. The returned function cancels
// just this subscription.
func (c *Client) Subscribe(msgType string, handler Handler) (unsubscribe func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	if c.subs[msgType] == nil {
		c.subs[msgType] = make(map[int]Handler)
	}
	c.subs[msgType][id] = handler

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if handlers, ok := c.subs[msgType]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subs, msgType)
			}
		}
	}
}

// OnStateChange registers a transition observer. The returned function
// cancels it.
func (c *Client) OnStateChange(handler StateHandler) (unsubscribe func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.stateSubs[id] = handler

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.stateSubs, id)
	}
}

// dispatch delivers the envelope to exact-type subscribers, then to
// wildcard subscribers for non-system types. Each handler is isolated: a
// panic is logged and the remaining handlers still run.
func (c *Client) dispatch(env *protocol.Envelope) {
	c.subsMu.RLock()
	handlers := make([]Handler, 0, 4)
	for _, h := range c.subs[env.Type] {
		handlers = append(handlers, h)
	}
	if !protocol.IsSystemType(env.Type) {
		for _, h := range c.subs[protocol.TypeWildcard] {
			handlers = append(handlers, h)
		}
	}
	c.subsMu.RUnlock()

	for _, h := range handlers {
		c.safeInvoke(h, env)
	}
}

func (c *Client) safeInvoke(h Handler, env *protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("type", env.Type).Msg("subscriber panicked")
		}
	}()
	h(env)
}

// setStateLocked transitions the state and returns a notifier closure, or
// nil when nothing changed. Callers hold c.mu and must invoke the notifier
// after unlocking so observers can safely call back into the client.
func (c *Client) setStateLocked(next State) func() {
	if c.state == next {
		return nil
	}
	prev := c.state
	c.state = next

	return func() {
		c.subsMu.RLock()
		observers := make([]StateHandler, 0, len(c.stateSubs))
		for _, h := range c.stateSubs {
			observers = append(observers, h)
		}
		c.subsMu.RUnlock()

		for _, h := range observers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.log.Error().Interface("panic", r).Msg("state observer panicked")
					}
				}()
				h(next, prev)
			}()
		}
	}
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

// startHeartbeatLocked begins the PING cadence for the current connection
// generation. Caller holds c.mu.
func (c *Client) startHeartbeatLocked(gen int) {
	c.stopHeartbeatLocked()
	c.heartbeatTicker = time.NewTicker(c.cfg.HeartbeatInterval)
	c.heartbeatStop = make(chan struct{})

	ticker := c.heartbeatTicker
	stop := c.heartbeatStop
	go func() {
		for {
			select {
			case <-ticker.C:
				c.sendPing(gen)
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatTicker != nil {
		c.heartbeatTicker.Stop()
		c.heartbeatTicker = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}

// sendPing emits the next heartbeat and arms the pong deadline. A missed
// deadline is fatal to the connection: the socket is closed with the
// heartbeat-timeout code, which feeds the reconnect path.
func (c *Client) sendPing(gen int) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.pingSeq++
	seq := c.pingSeq
	if c.pongTimer != nil {
		c.pongTimer.Stop()
	}
	c.pongTimer = time.AfterFunc(c.cfg.HeartbeatTimeout, func() {
		c.onHeartbeatTimeout(gen)
	})
	c.mu.Unlock()

	if err := c.Send(protocol.TypeSystemPing, protocol.PingPayload{Seq: seq}); err != nil {
		c.log.Warn().Err(err).Msg("heartbeat send failed")
	}
}

func (c *Client) onPong() {
	c.mu.Lock()
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	c.mu.Unlock()
}

func (c *Client) onHeartbeatTimeout(gen int) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	c.log.Warn().Msg("heartbeat timeout")
	if conn != nil {
		msg := websocket.FormatCloseMessage(protocol.CloseHeartbeatTimeout, "heartbeat timeout")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close() // read loop unblocks and drives reconnection
	}
}
