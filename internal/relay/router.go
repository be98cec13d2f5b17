package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docdoc/docdoc-server/internal/chatlog"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/docdoc/docdoc-server/internal/notify"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Upstream is the router's view of the Link.
type Upstream interface {
	Send(connectionID, text string) bool
	Events() <-chan Event
}

type Authenticator interface {
	Authenticate(ctx context.Context, accessKey string) (string, error)
}

// Sessions opens the session a connection writes to. An empty sessionID
// creates a new one.
type Sessions interface {
	OpenSession(ctx context.Context, ownerID, sessionID string) (chatlog.Session, error)
}

// Transcript queues messages for persistence without blocking.
type Transcript interface {
	Append(sessionID string, msg chatlog.Message, title string) bool
}

type RouterConfig struct {
	TitleMaxLength int
	StopMarker     string
}

// Router drives every turn: client messages go upstream, upstream events are
// routed back to the originating connection and recorded in the transcript.
//
// mu serializes compound transitions across the registry and tracker. Work
// done under mu never blocks: sinks and the transcript only enqueue.
type Router struct {
	mu sync.Mutex

	registry   *Registry
	tracker    *Tracker
	upstream   Upstream
	auth       Authenticator
	sessions   Sessions
	transcript Transcript
	publisher  notify.Publisher
	metrics    *Metrics
	logger     *logger.Logger
	cfg        RouterConfig
	now        func() time.Time
}

type RouterDeps struct {
	Registry   *Registry
	Tracker    *Tracker
	Upstream   Upstream
	Auth       Authenticator
	Sessions   Sessions
	Transcript Transcript
	Publisher  notify.Publisher
	Metrics    *Metrics
	Logger     *logger.Logger
}

func NewRouter(deps RouterDeps, cfg RouterConfig) *Router {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Router{
		registry:   deps.Registry,
		tracker:    deps.Tracker,
		upstream:   deps.Upstream,
		auth:       deps.Auth,
		sessions:   deps.Sessions,
		transcript: deps.Transcript,
		publisher:  publisher,
		metrics:    deps.Metrics,
		logger:     deps.Logger.WithComponent("relay-router"),
		cfg:        cfg,
		now:        time.Now,
	}
}

type AttachRequest struct {
	ConnectionID string
	AccessKey    string
	// ChatID resumes an existing session when set.
	ChatID string
	Sink   Sink
}

// Attach authenticates a new connection, opens its session and registers it.
// On authentication failure nothing is created and ErrAuthFailure is returned.
func (r *Router) Attach(ctx context.Context, req AttachRequest) (ClientConnection, error) {
	log := r.logger.WithContext(ctx).With(slog.String("connection_id", req.ConnectionID))

	ownerID, err := r.auth.Authenticate(ctx, req.AccessKey)
	if err != nil {
		log.Info("chat connection rejected", slog.String("error", err.Error()))
		req.Sink.Send(authErrorEvent(r.now()))
		return ClientConnection{}, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}

	session, err := r.sessions.OpenSession(ctx, ownerID, req.ChatID)
	switch code := status.Code(err); {
	case err == nil:
	case req.ChatID != "" && (code == codes.NotFound || code == codes.PermissionDenied):
		log.Warn("cannot resume chat session, starting a new one",
			slog.String("chat_id", req.ChatID),
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()))
		session, err = r.sessions.OpenSession(ctx, ownerID, "")
		if err != nil {
			log.Error("failed to create chat session", slog.String("error", err.Error()))
		}
	default:
		log.Error("failed to open chat session",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()))
	}

	client := ClientConnection{
		ID:        req.ConnectionID,
		OwnerID:   ownerID,
		SessionID: session.ID,
		Sink:      req.Sink,
	}
	if err := r.registry.Register(client); err != nil {
		return ClientConnection{}, err
	}

	req.Sink.Send(connectedEvent(client.ID, client.SessionID, r.now()))

	log.Info("chat client connected",
		slog.String("user_id", ownerID),
		slog.String("chat_id", client.SessionID))
	return client, nil
}

// HandleMessage starts a turn for connectionID.
func (r *Router) HandleMessage(connectionID, text string) error {
	r.mu.Lock()
	client, ok := r.registry.Get(connectionID)
	if !ok {
		r.mu.Unlock()
		return ErrUnknownConnection
	}

	if text == "" {
		r.mu.Unlock()
		client.Sink.Send(errorEvent(clientMessage(ErrEmptyMessage), r.now()))
		return ErrEmptyMessage
	}

	if err := r.registry.BeginTurn(connectionID); err != nil {
		r.mu.Unlock()
		client.Sink.Send(errorEvent(clientMessage(err), r.now()))
		return err
	}

	now := r.now()
	r.transcript.Append(client.SessionID, chatlog.Message{
		Text:      text,
		Sender:    chatlog.SenderUser,
		Timestamp: now,
	}, chatlog.TitleFromMessage(text, r.cfg.TitleMaxLength))
	client.Sink.Send(messageReceivedEvent(text, now))
	r.mu.Unlock()

	if r.upstream.Send(connectionID, text) {
		return nil
	}

	r.mu.Lock()
	r.registry.EndTurn(connectionID)
	r.tracker.Discard(connectionID)
	r.mu.Unlock()

	r.metrics.turn("upstream_unavailable")
	r.logger.Warn("inference server unavailable, message not forwarded",
		slog.String("connection_id", connectionID),
		slog.String("chat_id", client.SessionID))
	client.Sink.Send(errorEvent(clientMessage(ErrUpstreamUnavailable), r.now()))
	return ErrUpstreamUnavailable
}

// Stop ends the outstanding turn of connectionID at the client's request.
// Partial text is stored with the stop marker appended. Reports whether a
// turn was outstanding.
func (r *Router) Stop(connectionID string) bool {
	r.mu.Lock()
	client, ok := r.registry.Get(connectionID)
	if !ok || !client.Streaming {
		r.mu.Unlock()
		return false
	}

	reply, _ := r.tracker.Abort(connectionID)
	if reply.Text != "" {
		r.transcript.Append(client.SessionID, chatlog.Message{
			Text:      reply.Text + r.cfg.StopMarker,
			Sender:    chatlog.SenderAssistant,
			Timestamp: r.now(),
		}, "")
	}
	r.registry.EndTurn(connectionID)
	client.Sink.Send(streamStoppedEvent(reply.Text, r.now()))
	r.mu.Unlock()

	r.metrics.turn("stopped")
	r.publish(notify.SubjectTurnStopped, client, reply)
	r.logger.Info("streaming stopped by client",
		slog.String("connection_id", connectionID),
		slog.Int("fragments", reply.Fragments))
	return true
}

// Detach unregisters connectionID. An in-flight reply is discarded unsaved.
func (r *Router) Detach(connectionID string) {
	r.mu.Lock()
	client, ok := r.registry.Unregister(connectionID)
	r.mu.Unlock()

	if ok {
		r.logger.Info("chat client disconnected",
			slog.String("connection_id", connectionID),
			slog.String("chat_id", client.SessionID),
			slog.Bool("was_streaming", client.Streaming))
	}
}

// Run dispatches upstream events until ctx is cancelled or the event channel closes.
func (r *Router) Run(ctx context.Context) error {
	events := r.upstream.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.dispatch(ev)
		}
	}
}

func (r *Router) dispatch(ev Event) {
	r.metrics.upstreamEvent(ev.Kind)

	switch ev.Kind {
	case EventFragment:
		r.handleFragment(ev)
	case EventResult:
		r.handleResult(ev)
	case EventError:
		r.handleError(ev)
	case EventUnrecognized:
		r.handleUnrecognized(ev)
	case EventProtocolError:
		r.broadcastProtocolError()
	}
}

func (r *Router) handleFragment(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.registry.Get(ev.ClientID)
	if !ok {
		r.metrics.dropped("unknown_client")
		return
	}
	if !client.Streaming {
		// Late fragment of a stopped or finished turn.
		r.metrics.dropped("no_turn")
		return
	}

	now := r.now()
	if !r.tracker.Has(client.ID) {
		r.tracker.Begin(client.ID)
		client.Sink.Send(streamStartEvent(now))
	}
	if token, ok := r.tracker.AppendFragment(client.ID, ev.Content); ok {
		client.Sink.Send(streamTokenEvent(token, now))
		r.metrics.fragment()
	}
}

func (r *Router) handleResult(ev Event) {
	r.mu.Lock()
	client, ok := r.registry.Get(ev.ClientID)
	if !ok {
		r.mu.Unlock()
		r.metrics.dropped("unknown_client")
		return
	}
	if !client.Streaming {
		r.mu.Unlock()
		r.metrics.dropped("no_turn")
		return
	}

	var reply Reply
	if ev.Legacy {
		r.tracker.Discard(client.ID)
		reply = Reply{Text: ev.Content}
	} else {
		if !r.tracker.Has(client.ID) {
			r.tracker.Begin(client.ID)
		}
		reply, _ = r.tracker.End(client.ID, ev.Content)
	}

	now := r.now()
	r.transcript.Append(client.SessionID, chatlog.Message{
		Text:      reply.Text,
		Sender:    chatlog.SenderAssistant,
		Timestamp: now,
	}, "")
	r.registry.EndTurn(client.ID)

	if ev.Legacy {
		client.Sink.Send(responseEvent(reply.Text, now))
	} else {
		client.Sink.Send(streamEndEvent(reply, now))
	}
	r.mu.Unlock()

	r.metrics.turn("completed")
	r.publish(notify.SubjectTurnCompleted, client, reply)
}

func (r *Router) handleError(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.registry.Get(ev.ClientID)
	if !ok {
		r.metrics.dropped("unknown_client")
		return
	}

	r.tracker.Discard(client.ID)
	if r.registry.EndTurn(client.ID) {
		r.metrics.turn("upstream_error")
	}

	message := ev.Content
	if message == "" {
		message = clientMessage(ErrUpstreamProtocol)
	}
	client.Sink.Send(errorEvent(message, r.now()))
}

func (r *Router) handleUnrecognized(ev Event) {
	client, ok := r.registry.Get(ev.ClientID)
	if !ok {
		r.metrics.dropped("unknown_client")
		return
	}

	r.logger.Warn("unrecognized message from inference server",
		slog.String("connection_id", client.ID))
	client.Sink.Send(errorEvent(clientMessage(ErrUpstreamProtocol), r.now()))
}

// broadcastProtocolError notifies every client: an unparseable message
// cannot be attributed to one connection.
func (r *Router) broadcastProtocolError() {
	event := errorEvent(clientMessage(ErrUpstreamProtocol), r.now())
	count := 0
	r.registry.Each(func(c ClientConnection) {
		c.Sink.Send(event)
		count++
	})

	r.logger.Error("upstream protocol error broadcast", slog.Int("clients", count))
}

func (r *Router) publish(subject string, client ClientConnection, reply Reply) {
	err := r.publisher.Publish(context.Background(), notify.TurnEvent{
		Subject:      subject,
		ConnectionID: client.ID,
		ChatID:       client.SessionID,
		UserID:       client.OwnerID,
		Characters:   len([]rune(reply.Text)),
		Fragments:    reply.Fragments,
		DurationMs:   reply.Elapsed.Milliseconds(),
	})
	if err != nil {
		r.logger.Debug("turn notification not published",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
