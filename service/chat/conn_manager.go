package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"GCProject/logger"
	"GCProject/module/chat/model"
	"GCProject/tools/errs"
	"GCProject/tools/ids"
	"GCProject/tools/safe"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State of the one connection a session owns.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transport is what the session consumes: an event source plus an emit sink.
// ConnManager is the production implementation; tests swap in a fake.
type Transport interface {
	Connect(ctx context.Context, identity model.Identity) error
	Emit(event string, payload any) error
	Events() <-chan *Frame
	State() State
	OnUp(fn func())
	OnDown(fn func(err error))
	Dispose()
}

// ===== configuration =====

type ConnConf struct {
	URL              string
	HandshakeTimeout time.Duration // default 10s
	WriteTimeout     time.Duration // default 5s
	PingInterval     time.Duration // default 25s
	PongTimeout      time.Duration // read deadline window, default 75s
	SendQueueSize    int           // default 64
	EventQueueSize   int           // default 256
	MaxReconnectWait time.Duration // backoff cap, default 30s
	Dialer           *websocket.Dialer
	Clock            func() time.Time // injectable for tests; nil => time.Now
}

func (c *ConnConf) norm() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 75 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 256
	}
	if c.MaxReconnectWait <= 0 {
		c.MaxReconnectWait = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ===== manager =====

// ConnManager owns the single live websocket of a session: dial, auth,
// read pump, write queue, ping supervision, reconnect with exponential
// backoff. It is the only component allowed to create or destroy the
// connection; everything else reads state or submits frames.
type ConnManager struct {
	conf   ConnConf
	connID string

	mu       sync.RWMutex
	state    State
	conn     *websocket.Conn
	identity model.Identity
	onUp     func()
	onDown   func(error)
	started  bool

	sendCh   chan []byte
	events   chan *Frame
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewConnManager(conf ConnConf) *ConnManager {
	conf.norm()
	return &ConnManager{
		conf:   conf,
		connID: ids.GenerateString(),
		state:  StateDisconnected,
		sendCh: make(chan []byte, conf.SendQueueSize),
		events: make(chan *Frame, conf.EventQueueSize),
		stopCh: make(chan struct{}),
	}
}

func (m *ConnManager) ConnID() string { return m.connID }

func (m *ConnManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *ConnManager) Events() <-chan *Frame { return m.events }

// OnUp registers the hook invoked after every (re)established connection,
// before any inbound frame from it is delivered. Set before Connect.
func (m *ConnManager) OnUp(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUp = fn
}

// OnDown registers the hook invoked when the connection loop gives up for
// good: a rejected handshake or a cancelled context, anything that will not
// be retried. Dispose does not fire it. Set before Connect.
func (m *ConnManager) OnDown(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDown = fn
}

// Connect starts the connection loop for the given identity. One Connect per
// manager; switching identity means Dispose and a new manager.
func (m *ConnManager) Connect(ctx context.Context, identity model.Identity) error {
	if identity.AuthToken == "" {
		return errs.ErrAuthFailure.WrapMsg("identity has no token")
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errs.ErrConnectionFailure.WrapMsg("already connected", "connId", m.connID)
	}
	m.started = true
	m.identity = identity
	m.mu.Unlock()

	safe.Go("chat.conn.run", func() { m.run(ctx) })
	return nil
}

// Emit queues one outbound event. Fire-and-forget: a full queue or a down
// connection is reported as a retryable connection failure.
func (m *ConnManager) Emit(event string, payload any) error {
	if m.State() != StateConnected {
		return errs.ErrConnectionFailure.WrapMsg("not connected", "event", event)
	}
	b, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	select {
	case m.sendCh <- b:
		return nil
	default:
		return errs.ErrConnectionFailure.WrapMsg("send queue full", "event", event)
	}
}

// Dispose performs the scoped teardown: stops pumps, closes the socket, and
// leaves the manager in Disconnected. Safe to call from any exit path, more
// than once.
func (m *ConnManager) Dispose() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	closeQuiet(conn)
}

// ===== connection loop =====

func (m *ConnManager) run(ctx context.Context) {
	for {
		if m.stopped() {
			return
		}
		m.setState(StateConnecting)

		conn, err := m.dial(ctx)
		if err != nil {
			m.setState(StateDisconnected)
			if !m.stopped() {
				// Terminal and not user-initiated: rejected credentials or a
				// dead context. The owner decides what to tell the user.
				logger.Error("connection gave up",
					zap.String("connId", m.connID), zap.Error(err))
				m.notifyDown(err)
			}
			return
		}

		m.mu.Lock()
		if m.stopped() {
			// Dispose raced the handshake; the new socket must not surface.
			m.mu.Unlock()
			closeQuiet(conn)
			return
		}
		m.conn = conn
		m.state = StateConnected
		up := m.onUp
		m.mu.Unlock()
		logger.Info("connection established",
			zap.String("connId", m.connID), zap.String("url", m.conf.URL))
		if up != nil {
			up()
		}

		done := make(chan struct{})
		safe.Go("chat.conn.write", func() { m.writePump(conn, done) })
		err = m.readPump(conn)
		close(done)
		closeQuiet(conn)

		if m.stopped() {
			m.setState(StateDisconnected)
			return
		}
		logger.Warn("connection lost, reconnecting",
			zap.String("connId", m.connID), zap.Error(err))
	}
}

func (m *ConnManager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.mu.RLock()
	identity := m.identity
	m.mu.RUnlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+identity.AuthToken)
	header.Set("X-User-Id", identity.ID)
	header.Set("X-Conn-Id", m.connID)

	dialer := *m.conf.Dialer
	dialer.HandshakeTimeout = m.conf.HandshakeTimeout

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = m.conf.MaxReconnectWait
	bo.MaxElapsedTime = 0 // retry until disposed

	var conn *websocket.Conn
	op := func() error {
		select {
		case <-m.stopCh:
			return backoff.Permanent(errs.ErrConnectionFailure.WrapMsg("disposed"))
		default:
		}
		c, resp, err := dialer.DialContext(ctx, m.conf.URL, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(errs.ErrAuthFailure.WrapMsg("handshake rejected", "status", resp.StatusCode))
			}
			logger.Warn("dial failed", zap.String("url", m.conf.URL), zap.Error(err))
			return errs.ErrConnectionFailure.WrapMsg("dial", "err", err)
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// readPump delivers inbound frames to the events channel until the
// connection dies. Undecodable frames are logged and skipped, not fatal.
func (m *ConnManager) readPump(conn *websocket.Conn) error {
	deadline := func() time.Time { return m.conf.Clock().Add(m.conf.PongTimeout) }
	_ = conn.SetReadDeadline(deadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(deadline())
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(deadline())

		f, err := ParseFrame(raw)
		if err != nil {
			logger.Warn("dropping bad frame", zap.String("connId", m.connID), zap.Error(err))
			continue
		}
		select {
		case m.events <- f:
		case <-m.stopCh:
			return nil
		}
	}
}

// writePump is the single writer for one connection: outbound frames plus
// the ping ticker.
func (m *ConnManager) writePump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.conf.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case b := <-m.sendCh:
			if err := writeText(conn, b, m.conf.WriteTimeout); err != nil {
				logger.Warn("write failed", zap.String("connId", m.connID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, m.conf.Clock().Add(m.conf.WriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *ConnManager) notifyDown(err error) {
	m.mu.RLock()
	down := m.onDown
	m.mu.RUnlock()
	if down != nil {
		down(err)
	}
}

func (m *ConnManager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *ConnManager) stopped() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

// ===== helpers =====

func writeText(conn *websocket.Conn, data []byte, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
