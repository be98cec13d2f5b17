package chatlog

import (
	"log/slog"
	"net/http"

	"github.com/docdoc/docdoc-server/internal/auth"
	apierrors "github.com/docdoc/docdoc-server/internal/errors"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// GetHistory handles GET /chat/history/:userUuid.
// Must run behind auth.RequireAccessKey.
func (h *Handler) GetHistory(c *gin.Context) {
	userUUID := c.Param("userUuid")
	callerID, ok := auth.GetUserID(c)
	if !ok || callerID != userUUID {
		apierrors.AbortWithUnauthorized(c, "not authorized", nil)
		return
	}

	log := h.logger.WithContext(c.Request.Context())

	sessions, err := h.service.History(c.Request.Context(), userUUID)
	if err != nil {
		log.Error("failed to load chat history",
			slog.String("user_id", userUUID),
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "server error", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chatHistory": sessions})
}
