package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIError is the JSON body of every failed HTTP response.
// The success flag is always false; the front-end branches on it.
type APIError struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// HTTPStatus maps a service-layer status code to an HTTP status.
func HTTPStatus(err error) int {
	switch status.Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithStatus classifies err and aborts with the matching HTTP status.
// Internal errors never leak their message; fallback is sent instead.
func AbortWithStatus(c *gin.Context, err error, fallback string) {
	code := HTTPStatus(err)
	message := fallback
	if code != http.StatusInternalServerError {
		if s, ok := status.FromError(err); ok && s.Message() != "" {
			message = s.Message()
		}
	}
	c.AbortWithStatusJSON(code, NewAPIError(message, nil))
}
