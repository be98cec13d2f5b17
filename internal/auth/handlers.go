package auth

import (
	"log/slog"
	"net/http"

	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Handler serves the /auth routes. Every response is 200 with a resultCode.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type registerRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"resultCode": ResultBadParams})
		return
	}

	userUUID, err := h.service.Register(c.Request.Context(), req.ID, req.Password, req.Nickname)
	if err != nil {
		h.logFailure(c, "register", err)
		c.JSON(http.StatusOK, gin.H{"resultCode": resultCode(err, map[codes.Code]int{
			codes.AlreadyExists: ResultDuplicateID,
		})})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resultCode": ResultOK, "uuid": userUUID})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"resultCode": ResultBadParams})
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		h.logFailure(c, "login", err)
		c.JSON(http.StatusOK, gin.H{"resultCode": resultCode(err, map[codes.Code]int{
			codes.NotFound:        ResultNoSuchID,
			codes.Unauthenticated: ResultWrongPassword,
		})})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resultCode": ResultOK, "user": result})
}

// GetUser handles GET /auth/user/:uuid with the access key in the "accesskey" header.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.service.UserInfo(c.Request.Context(), c.GetHeader("accesskey"), c.Param("uuid"))
	if err != nil {
		h.logFailure(c, "user info", err)
		c.JSON(http.StatusOK, gin.H{"resultCode": resultCode(err, map[codes.Code]int{
			codes.Unauthenticated:  ResultInvalidKey,
			codes.PermissionDenied: ResultForbidden,
			codes.NotFound:         ResultUserNotFound,
		})})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resultCode": ResultOK, "user": user})
}

func resultCode(err error, known map[codes.Code]int) int {
	code := status.Code(err)
	if rc, ok := known[code]; ok {
		return rc
	}
	if code == codes.InvalidArgument {
		return ResultBadParams
	}
	return ResultDatabaseError
}

func (h *Handler) logFailure(c *gin.Context, op string, err error) {
	log := h.logger.WithContext(c.Request.Context())
	if status.Code(err) == codes.Internal {
		log.Error("auth operation failed", slog.String("op", op), slog.String("error", err.Error()))
		return
	}
	log.Debug("auth operation rejected", slog.String("op", op), slog.String("error", err.Error()))
}
