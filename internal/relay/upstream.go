package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gorilla/websocket"
)

// LinkState is the connection state of the upstream link.
type LinkState int

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
)

func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is the subset of *websocket.Conn the link uses.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer returns a Dialer backed by gorilla/websocket.
func NewWebSocketDialer(handshakeTimeout time.Duration) Dialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = handshakeTimeout
	return &wsDialer{dialer: &d}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type LinkConfig struct {
	URL            string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// LinkStatus is a point-in-time view of the link.
type LinkStatus struct {
	State               LinkState
	URL                 string
	ReconnectPending    bool
	DialAttempts        int64
	ReconnectsScheduled int64
	ConnectedSince      time.Time
}

type pendingReconnect struct {
	timer *time.Timer
}

// Link is the single shared connection to the inference server.
//
// State moves Disconnected -> Connecting -> Connected and back to
// Disconnected on close or error. Only one dial is ever in flight and at most
// one reconnect timer is pending.
type Link struct {
	cfg    LinkConfig
	dialer Dialer
	logger *logger.Logger
	events chan Event
	done   chan struct{}

	mu             sync.Mutex
	state          LinkState
	conn           Conn
	reconnect      *pendingReconnect
	closed         bool
	connectedSince time.Time
	dialAttempts   int64
	reconnects     int64

	writeMu sync.Mutex
	now     func() time.Time
}

func NewLink(cfg LinkConfig, dialer Dialer, logger *logger.Logger) *Link {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	return &Link{
		cfg:    cfg,
		dialer: dialer,
		logger: logger.WithComponent("upstream-link"),
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Events delivers parsed upstream messages in arrival order.
func (l *Link) Events() <-chan Event {
	return l.events
}

// Connect starts a dial unless one is in flight or the link is connected.
func (l *Link) Connect() {
	l.mu.Lock()
	if l.closed || l.state != StateDisconnected {
		l.mu.Unlock()
		return
	}
	l.state = StateConnecting
	l.dialAttempts++
	l.mu.Unlock()

	go l.dial()
}

func (l *Link) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.DialTimeout)
	defer cancel()

	l.logger.Info("connecting to inference server", slog.String("url", l.cfg.URL))
	conn, err := l.dialer.Dial(ctx, l.cfg.URL)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		l.state = StateDisconnected
		scheduled := l.scheduleReconnectLocked()
		l.mu.Unlock()

		l.logger.Error("failed to connect to inference server",
			slog.String("url", l.cfg.URL),
			slog.String("error", err.Error()),
			slog.Bool("reconnect_scheduled", scheduled))
		return
	}

	l.state = StateConnected
	l.conn = conn
	l.connectedSince = l.now()
	if l.reconnect != nil {
		l.reconnect.timer.Stop()
		l.reconnect = nil
	}
	l.mu.Unlock()

	l.logger.Info("connected to inference server", slog.String("url", l.cfg.URL))
	go l.readLoop(conn)
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
// l.mu must be held.
func (l *Link) scheduleReconnectLocked() bool {
	if l.closed || l.reconnect != nil {
		return false
	}

	pending := &pendingReconnect{}
	l.reconnect = pending
	l.reconnects++
	pending.timer = time.AfterFunc(l.cfg.ReconnectDelay, func() {
		l.mu.Lock()
		if l.reconnect != pending {
			l.mu.Unlock()
			return
		}
		l.reconnect = nil
		l.mu.Unlock()

		l.Connect()
	})
	return true
}

func (l *Link) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.handleDisconnect(conn, err)
			return
		}

		ev := ParseEvent(data)
		if ev.Kind == EventProtocolError {
			l.logger.Warn("unparseable message from inference server",
				slog.Int("bytes", len(data)))
		}

		select {
		case l.events <- ev:
		case <-l.done:
			return
		}
	}
}

// handleDisconnect moves to Disconnected if conn is still the current connection.
func (l *Link) handleDisconnect(conn Conn, cause error) {
	l.mu.Lock()
	if l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	l.state = StateDisconnected
	scheduled := l.scheduleReconnectLocked()
	closed := l.closed
	l.mu.Unlock()

	conn.Close()

	if closed {
		return
	}
	attrs := []any{slog.Bool("reconnect_scheduled", scheduled)}
	if cause != nil && !errors.Is(cause, websocket.ErrCloseSent) {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	l.logger.Warn("inference server connection lost", attrs...)
}

// Send forwards text tagged with connectionID. It returns false if the link is
// not connected or the write fails; a reconnect is then scheduled if none is
// pending and no dial is in flight.
func (l *Link) Send(connectionID, text string) bool {
	l.mu.Lock()
	conn := l.conn
	if l.state != StateConnected || conn == nil {
		if l.state == StateDisconnected {
			l.scheduleReconnectLocked()
		}
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()

	payload, err := encodeQuestion(connectionID, text, l.now())
	if err != nil {
		l.logger.Error("failed to encode question", slog.String("error", err.Error()))
		return false
	}

	l.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	l.writeMu.Unlock()

	if err != nil {
		l.logger.Error("failed to send to inference server",
			slog.String("connection_id", connectionID),
			slog.String("error", err.Error()))
		l.handleDisconnect(conn, err)
		return false
	}
	return true
}

func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Status() LinkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := LinkStatus{
		State:               l.state,
		URL:                 l.cfg.URL,
		ReconnectPending:    l.reconnect != nil,
		DialAttempts:        l.dialAttempts,
		ReconnectsScheduled: l.reconnects,
	}
	if l.state == StateConnected {
		s.ConnectedSince = l.connectedSince
	}
	return s
}

// Close stops reconnecting and closes the connection.
func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.reconnect != nil {
		l.reconnect.timer.Stop()
		l.reconnect = nil
	}
	conn := l.conn
	l.conn = nil
	l.state = StateDisconnected
	l.mu.Unlock()

	close(l.done)

	if conn != nil {
		l.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
		l.writeMu.Unlock()
		conn.Close()
	}
}
