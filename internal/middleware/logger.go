package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"plumberleads/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// ErrorLogger tags each request with an id, recovers panics and writes one
// logfmt line per failed request. 4xx responses are not logged.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxRequestID, rid)
		c.Writer.Header().Set(requestIDHeader, rid)

		defer func() {
			if recovered := recover(); recovered != nil {
				logRequestError(c, start, "panic", fmt.Sprint(recovered), debug.Stack())
				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
				}
				c.Abort()
				return
			}

			for _, err := range c.Errors {
				logRequestError(c, start, fmt.Sprintf("%v", err.Type), err.Error(), nil)
			}
			if len(c.Errors) == 0 && c.Writer.Status() >= http.StatusInternalServerError {
				logRequestError(c, start, "http_error", http.StatusText(c.Writer.Status()), nil)
			}
		}()

		c.Next()
	}
}

// RequestID returns the id ErrorLogger assigned to the request.
func RequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func logRequestError(c *gin.Context, start time.Time, errType string, message string, stack []byte) {
	line := fmt.Sprintf(
		"level=error msg=request_error type=%s status=%d method=%s path=%s client_ip=%s actor_id=%s admin=%t request_id=%s latency=%s error=%q",
		errType,
		c.Writer.Status(),
		c.Request.Method,
		c.FullPath(),
		c.ClientIP(),
		c.GetString(ctxActorID),
		c.GetBool(ctxIsAdmin),
		RequestID(c),
		time.Since(start),
		message,
	)
	if len(stack) > 0 {
		line += fmt.Sprintf(" stack=%q", stack)
	}
	log.Print(line)
}
