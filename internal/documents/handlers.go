package documents

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/docdoc/docdoc-server/internal/errors"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.WithComponent("documents").WithFields(map[string]interface{}{"kind": service.Kind().Kind}),
	}
}

// Register mounts POST /, GET / and GET /:id on group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
}

type createRequest struct {
	JSON json.RawMessage `json:"json"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "json field is required", nil)
		return
	}

	id, err := h.service.Insert(c.Request.Context(), req.JSON)
	if err != nil {
		h.fail(c, err, "failed to save document")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":      id,
			"message": "saved",
		},
	})
}

func (h *Handler) List(c *gin.Context) {
	order := NewestFirst
	if c.Query("sort") == "oldest" {
		order = OldestFirst
	}

	docs, err := h.service.List(c.Request.Context(), order)
	if err != nil {
		h.fail(c, err, "failed to list documents")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			h.service.Kind().ListKey: docs,
			"total":                  len(docs),
		},
	})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apierrors.AbortWithBadRequest(c, "invalid id", nil)
		return
	}

	doc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load document")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": doc})
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	if status.Code(err) == codes.Internal {
		h.logger.WithContext(c.Request.Context()).Error(fallback, slog.String("error", err.Error()))
	}
	apierrors.AbortWithStatus(c, err, fallback)
}
