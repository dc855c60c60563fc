package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitebot/internal/pkg/jwtutil"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/me", AuthJWT("secret"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint(ContextUserIDKey)})
	})
	return r
}

func TestAuthJWT(t *testing.T) {
	r := newAuthRouter()
	valid, err := jwtutil.GenerateToken("secret", time.Hour, 42, "alice")
	require.NoError(t, err)
	forged, err := jwtutil.GenerateToken("other", time.Hour, 42, "alice")
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		status int
	}{
		"valid":      {"Bearer " + valid, http.StatusOK},
		"missing":    {"", http.StatusUnauthorized},
		"bad scheme": {"Basic " + valid, http.StatusUnauthorized},
		"forged":     {"Bearer " + forged, http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestPublicCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/widget", PublicCORS())
	g.POST("/chat", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	g.OPTIONS("/chat", func(*gin.Context) {})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/widget/chat", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/widget/chat", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
