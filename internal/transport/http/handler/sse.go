package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var errStreamUnsupported = errors.New("stream not supported")

// sseSink writes answer frames as server-sent events:
//
//	data: {"data":""}
//	data: {"data":"<token>"}
//	data: {"error":"<message>"}
//	data: [DONE]
//
// Headers go out with the first call, so a request rejected before
// streaming can still get a plain JSON error.
type sseSink struct {
	c       *gin.Context
	flusher http.Flusher
	started bool
	greeted bool
	done    bool
}

func newSSESink(c *gin.Context) (*sseSink, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, errStreamUnsupported
	}
	return &sseSink{c: c, flusher: flusher}, nil
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	s.started = true
	setSSEHeaders(s.c)
	s.c.Status(http.StatusOK)
	s.flusher.Flush()
}

// Token writes one answer fragment. The first empty token is the handshake
// frame; later empty tokens are dropped.
func (s *sseSink) Token(text string) error {
	s.start()
	if text == "" {
		if s.greeted {
			return nil
		}
		s.greeted = true
	}
	return s.frame(gin.H{"data": text})
}

func (s *sseSink) Error(message string) error {
	s.start()
	return s.frame(gin.H{"error": message})
}

// Done terminates the stream. Later calls are no-ops.
func (s *sseSink) Done() error {
	if s.done {
		return nil
	}
	s.start()
	s.done = true
	return s.write("data: [DONE]\n\n")
}

func (s *sseSink) frame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write("data: " + string(payload) + "\n\n")
}

func (s *sseSink) write(frame string) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	if _, err := s.c.Writer.WriteString(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}
