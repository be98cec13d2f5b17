package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/docdoc/docdoc-server/internal/auth"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP middleware
	},
}

type inboundClientEvent struct {
	Event string `json:"event"`
	Data  struct {
		Message string `json:"message"`
	} `json:"data"`
}

// Handler serves the /chat real-time and status endpoints.
type Handler struct {
	router     *Router
	link       *Link
	registry   *Registry
	sendBuffer int
	logger     *logger.Logger
}

func NewHandler(router *Router, link *Link, registry *Registry, sendBuffer int, logger *logger.Logger) *Handler {
	return &Handler{
		router:     router,
		link:       link,
		registry:   registry,
		sendBuffer: sendBuffer,
		logger:     logger.WithComponent("chat-handler"),
	}
}

// ServeWS handles GET /chat/ws?accessKey=...&chatId=...
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	connectionID := uuid.New().String()
	ctx := logger.WithConnectionID(c.Request.Context(), connectionID)
	log := h.logger.WithContext(ctx)

	client := newWSClient(connectionID, conn, h.sendBuffer, log)
	go client.sendLoop()

	_, err = h.router.Attach(ctx, AttachRequest{
		ConnectionID: connectionID,
		AccessKey:    auth.AccessKeyFromRequest(c),
		ChatID:       c.Query("chatId"),
		Sink:         client,
	})
	if err != nil {
		client.Close()
		return
	}
	defer client.Close()
	defer h.router.Detach(connectionID)

	conn.SetReadLimit(maxClientMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var in inboundClientEvent
		if err := json.Unmarshal(data, &in); err != nil {
			log.Debug("ignoring malformed client frame", slog.String("error", err.Error()))
			continue
		}

		switch in.Event {
		case EventNameSendMessage:
			h.router.HandleMessage(connectionID, in.Data.Message)
		case EventNameStopStreaming:
			h.router.Stop(connectionID)
		case EventNamePing:
			client.Send(pongEvent(time.Now()))
		default:
			log.Debug("ignoring unknown client event", slog.String("event", in.Event))
		}
	}
}

// Health handles GET /chat/health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"llmServerConnected": h.link.State() == StateConnected,
		"activeClients":      h.registry.Len(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

// LLMStatus handles GET /chat/llm-status.
func (h *Handler) LLMStatus(c *gin.Context) {
	s := h.link.Status()

	resp := gin.H{
		"state":               s.State.String(),
		"connected":           s.State == StateConnected,
		"connecting":          s.State == StateConnecting,
		"reconnectPending":    s.ReconnectPending,
		"url":                 s.URL,
		"dialAttempts":        s.DialAttempts,
		"reconnectsScheduled": s.ReconnectsScheduled,
		"activeClients":       h.registry.Len(),
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	}
	if !s.ConnectedSince.IsZero() {
		resp["connectedSince"] = s.ConnectedSince.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// Reconnect handles POST /chat/reconnect-llm.
func (h *Handler) Reconnect(c *gin.Context) {
	h.link.Connect()
	h.logger.WithContext(c.Request.Context()).Info("manual inference server reconnect requested")

	c.JSON(http.StatusOK, gin.H{
		"message":   "reconnect requested",
		"state":     h.link.State().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
