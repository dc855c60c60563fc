package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESink_HandshakeOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/widget/site-1/chat", nil)

	sink, err := newSSESink(c)
	require.NoError(t, err)

	require.NoError(t, sink.Token(""))
	require.NoError(t, sink.Token("hi"))
	require.NoError(t, sink.Token(""))
	require.NoError(t, sink.Done())
	require.NoError(t, sink.Done())

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"data\":\"\"}\n\ndata: {\"data\":\"hi\"}\n\ndata: [DONE]\n\n", w.Body.String())
}
