package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
)

// serveCorrelated runs one request through the middleware and returns the
// recorder plus the correlation id the handler saw in its context.
func serveCorrelated(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationID())

	var seen string
	router.GET("/health", func(c *gin.Context) {
		v, ok := c.Get(string(logging.CorrelationIDKey))
		require.True(t, ok)
		seen = v.(string)
		c.Status(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp, seen
}

func TestCorrelationID_MintsWhenAbsent(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, seen := serveCorrelated(t, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, resp.Header().Get(HeaderXCorrelationID))
}

func TestCorrelationID_PropagatesClientID(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderXCorrelationID, "arena-req-42")
	resp, seen := serveCorrelated(t, req)

	assert.Equal(t, "arena-req-42", seen)
	assert.Equal(t, "arena-req-42", resp.Header().Get(HeaderXCorrelationID))
}
