package requestid

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderKey carries the correlation id between the client and the API.
	HeaderKey  = "X-Request-ID"
	contextKey = "request_id"
)

// Middleware echoes the caller's request ID or assigns a new one.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderKey)
		if reqID == "" {
			reqID = New()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(HeaderKey, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Stamp sets a fresh request ID on an outgoing request unless one is present.
func Stamp(req *http.Request) string {
	if id := req.Header.Get(HeaderKey); id != "" {
		return id
	}
	id := New()
	req.Header.Set(HeaderKey, id)
	return id
}

// New returns a random request ID.
func New() string {
	return uuid.NewString()
}
