package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	// NATS subjects for chat turn lifecycle notifications.
	SubjectTurnCompleted = "chat.turn.completed"
	SubjectTurnStopped   = "chat.turn.stopped"
)

// TurnEvent describes a finished chat turn.
type TurnEvent struct {
	Subject      string `json:"-"`
	ConnectionID string `json:"connection_id"`
	ChatID       string `json:"chat_id"`
	UserID       string `json:"user_id"`
	Characters   int    `json:"characters"`
	Fragments    int    `json:"fragments"`
	DurationMs   int64  `json:"duration_ms"`
	InstanceID   string `json:"instance_id"`
	Timestamp    string `json:"timestamp"`
}

// Publisher fans turn events out to other services.
type Publisher interface {
	Publish(ctx context.Context, event TurnEvent) error
	Close()
}

// NatsPublisher publishes turn events on NATS subjects.
type NatsPublisher struct {
	nc     *nats.Conn
	logger *logger.Logger
}

// Connect dials NATS. The connection reconnects on its own after startup.
func Connect(url string, baseLogger *logger.Logger) (*NatsPublisher, error) {
	log := baseLogger.WithComponent("notify")

	nc, err := nats.Connect(url,
		nats.Name("docdoc-server-"+logger.GetInstanceID()),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return NewNatsPublisher(nc, baseLogger), nil
}

func NewNatsPublisher(nc *nats.Conn, logger *logger.Logger) *NatsPublisher {
	return &NatsPublisher{nc: nc, logger: logger.WithComponent("notify")}
}

func (p *NatsPublisher) Publish(ctx context.Context, event TurnEvent) error {
	if event.InstanceID == "" {
		event.InstanceID = logger.GetInstanceID()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	if err := p.nc.Publish(event.Subject, data); err != nil {
		p.logger.WithContext(ctx).Error("failed to publish turn event",
			slog.String("subject", event.Subject),
			slog.String("chat_id", event.ChatID),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Nop discards events. Used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, TurnEvent) error { return nil }
func (Nop) Close()                                  {}
