// Package management provides the HTTP handlers the presentation layer uses
// to read usage statistics and run maintenance actions.
package management

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skyrelay/skyrelay/internal/buildinfo"
)

// APIResponse is the standard response envelope.
type APIResponse struct {
	Data any     `json:"data"`
	Meta APIMeta `json:"meta"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// APIError is the standard error response.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error details.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Standard error codes.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeWriteFailed    = "WRITE_FAILED"
	ErrCodeRateLimited    = "RATE_LIMITED"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{
		Data: data,
		Meta: APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   buildinfo.Version,
		},
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, APIError{
		Error: APIErrorDetail{Code: code, Message: message},
	})
}
