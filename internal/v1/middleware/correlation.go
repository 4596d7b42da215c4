// Package middleware holds the gin middleware shared by the arena and
// gateway binaries.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
)

// HeaderXCorrelationID carries the request correlation id end to end.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID tags every HTTP request with a correlation id, minting one
// when the client did not supply its own. The id is echoed on the response
// and stashed in the request context under logging.CorrelationIDKey, so a
// gateway redirect and the worker it lands on log under the same id.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderXCorrelationID, id)
		c.Set(string(logging.CorrelationIDKey), id)
		c.Next()
	}
}
