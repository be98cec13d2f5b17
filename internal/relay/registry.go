package relay

import (
	"log/slog"
	"sync"

	"github.com/docdoc/docdoc-server/internal/logger"
)

// Sink delivers events to one client. Send must not block.
type Sink interface {
	Send(event ClientEvent) bool
}

// ClientConnection is one live real-time connection.
type ClientConnection struct {
	ID        string
	OwnerID   string
	SessionID string

	// Streaming is set while a turn is outstanding for this connection.
	Streaming bool

	Sink Sink
}

// Registry maps connection ids to live clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*ClientConnection
	tracker *Tracker
	logger  *logger.Logger
}

func NewRegistry(tracker *Tracker, logger *logger.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*ClientConnection),
		tracker: tracker,
		logger:  logger.WithComponent("client-registry"),
	}
}

// Register adds conn. Connection ids must be unique among live connections.
func (r *Registry) Register(conn ClientConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[conn.ID]; exists {
		return ErrConnectionExists
	}
	conn.Streaming = false
	r.clients[conn.ID] = &conn

	r.logger.Debug("client registered",
		slog.String("connection_id", conn.ID),
		slog.String("user_id", conn.OwnerID),
		slog.String("chat_id", conn.SessionID),
		slog.Int("total_clients", len(r.clients)))
	return nil
}

func (r *Registry) Get(connectionID string) (ClientConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[connectionID]
	if !ok {
		return ClientConnection{}, false
	}
	return *c, true
}

// Unregister removes the connection and discards its streaming session.
// Unknown ids are ignored.
func (r *Registry) Unregister(connectionID string) (ClientConnection, bool) {
	r.mu.Lock()
	c, ok := r.clients[connectionID]
	delete(r.clients, connectionID)
	remaining := len(r.clients)
	r.mu.Unlock()

	discarded := r.tracker.Discard(connectionID)

	if !ok {
		return ClientConnection{}, false
	}

	r.logger.Debug("client unregistered",
		slog.String("connection_id", connectionID),
		slog.Bool("discarded_stream", discarded),
		slog.Int("total_clients", remaining))
	return *c, true
}

// BeginTurn marks the connection as streaming.
func (r *Registry) BeginTurn(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connectionID]
	if !ok {
		return ErrUnknownConnection
	}
	if c.Streaming {
		return ErrDuplicateTurn
	}
	c.Streaming = true
	return nil
}

// EndTurn clears the streaming flag. Reports whether a turn was outstanding.
func (r *Registry) EndTurn(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connectionID]
	if !ok || !c.Streaming {
		return false
	}
	c.Streaming = false
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Each calls fn for a snapshot of all registered connections.
func (r *Registry) Each(fn func(ClientConnection)) {
	r.mu.RLock()
	snapshot := make([]ClientConnection, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, *c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}
