package middleware

import (
	"context"
	"strings"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	sessionIDHeader = "X-Session-Id"
)

// TraceContextMiddleware stamps every request with a trace id and a
// request id, minting them when the caller sent none, and carries an
// optional session id through. All three land in the request context
// for log correlation and in the response headers for the caller.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := headerOrNew(c, traceIDHeader)
		ctx = context.WithValue(ctx, contextkey.TraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := headerOrNew(c, requestIDHeader)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		// The session id is caller-supplied correlation; it is echoed,
		// never minted.
		if sessionID := strings.TrimSpace(c.GetHeader(sessionIDHeader)); sessionID != "" {
			ctx = context.WithValue(ctx, contextkey.SessionID, sessionID)
			c.Writer.Header().Set(sessionIDHeader, sessionID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func headerOrNew(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.NewString()
}
