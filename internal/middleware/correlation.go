// Package middleware holds Gin middleware shared across Bonfire's HTTP
// and WebSocket-upgrade surfaces.
package middleware

import (
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header carrying the request correlation id,
// grounded verbatim on internal/v1/middleware/correlation.go.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID attaches a correlation id (client-supplied or freshly
// minted) to the request context so every log line for this request can
// be tied together.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Header(HeaderXCorrelationID, correlationID)
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
