package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	maxClientMessageSize = 64 * 1024
)

// wsClient is the Sink of one browser websocket. Events are queued and
// written by sendLoop; a full queue drops the event.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	logger *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

func newWSClient(id string, conn *websocket.Conn, buffer int, logger *logger.Logger) *wsClient {
	if buffer <= 0 {
		buffer = 256
	}
	return &wsClient{
		id:      id,
		conn:    conn,
		sendCh:  make(chan []byte, buffer),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (c *wsClient) Send(event ClientEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal client event",
			slog.String("event", event.Event),
			slog.String("error", err.Error()))
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("client send buffer full, event dropped",
			slog.String("connection_id", c.id),
			slog.String("event", event.Event))
		return false
	}
}

// Close stops the send loop after flushing queued events and closes the socket.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.stopped
}

func (c *wsClient) sendLoop() {
	defer close(c.stopped)
	defer c.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			if !c.write(websocket.TextMessage, data) {
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}

		case <-c.done:
			for {
				select {
				case data := <-c.sendCh:
					if !c.write(websocket.TextMessage, data) {
						return
					}
				default:
					c.write(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *wsClient) write(messageType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug("failed to write to websocket",
			slog.String("connection_id", c.id),
			slog.String("error", err.Error()))
		return false
	}
	return true
}
