package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"atracker/internal/bundle"
	"atracker/internal/logging"
	"atracker/internal/pattern"
	"atracker/internal/store"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = s.logger.NewRequestID()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.WithContext(c.Request.Context()).Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.logger.WithContext(c.Request.Context()).Error("handler panic",
		"path", c.FullPath(),
		"panic", recovered,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error:     "internal error",
		Code:      "INTERNAL",
		RequestID: logging.RequestIDFromContext(c.Request.Context()),
	})
}

// badRequest replies 400 with code.
func (s *Server) badRequest(c *gin.Context, code string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: logging.RequestIDFromContext(c.Request.Context()),
	})
}

// fail maps err onto a status: invalid input is 400, a missing row 404 and
// anything else 500. Only the 500 message is hidden from the client.
func (s *Server) fail(c *gin.Context, op string, err error) {
	status, code, msg := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, code, msg = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, pattern.ErrInvalidPattern),
		errors.Is(err, bundle.ErrInvalidBundle):
		status, code, msg = http.StatusBadRequest, "INVALID", err.Error()
	default:
		s.logger.WithContext(c.Request.Context()).Error(op+" failed", "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: logging.RequestIDFromContext(c.Request.Context()),
	})
}
