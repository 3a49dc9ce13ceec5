package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID propagates an incoming X-Request-ID or assigns a new one.
func RequestID(c *gin.Context) {
	id := c.GetHeader(HeaderRequestID)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}

	c.Set(requestIDKey, id)
	c.Header(HeaderRequestID, id)
	c.Next()
}

// GetRequestID returns the id assigned by RequestID, if any.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
