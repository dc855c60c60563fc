// Package qa implements the conversational question answering chain:
// condense the follow-up question, retrieve tenant context and stream the
// generated answer.
package qa

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"sitebot/internal/ai"
	"sitebot/internal/logging"
	"sitebot/internal/retrieval"
)

const (
	PublicErrorMessage     = "Sorry, something went wrong while answering. Please try again later."
	retrievalErrorMessage  = "Could not search this site's content. Please try again."
	generationErrorMessage = "The assistant could not finish the answer. Please try again."
)

// Turn is one earlier exchange sent back by the client.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Request struct {
	Question string
	History  []Turn
	SiteID   string
	// Public marks callers from the embeddable widget: deltas are sanitized
	// and errors are reduced to a generic apology.
	Public bool
	TopK   int
}

// Sink receives the stream. Token("") is sent first as a handshake and Done
// is always the last call, exactly once.
type Sink interface {
	Token(text string) error
	Error(message string) error
	Done() error
}

type Result struct {
	Answer             string
	StandaloneQuestion string
	Context            string
	Sources            []string
	EmbeddingTokens    int
	// ReachedGeneration is false when the request failed before the model
	// was asked for an answer.
	ReachedGeneration bool
}

type Retriever interface {
	Retrieve(ctx context.Context, query, siteID string, k int) (*retrieval.Result, error)
}

type Chain struct {
	chat      ai.ChatProvider
	retriever Retriever
	logger    *zap.Logger
}

func NewChain(chat ai.ChatProvider, retriever Retriever, logger *zap.Logger) *Chain {
	return &Chain{
		chat:      chat,
		retriever: retriever,
		logger:    logger.Named("qa"),
	}
}

// Stream answers req, writing frames to sink. The returned error is the
// failure that ended the stream, if any; it has already been reported to the
// sink unless the client went away.
func (c *Chain) Stream(ctx context.Context, req Request, sink Sink) (res *Result, err error) {
	res = &Result{}
	if err := sink.Token(""); err != nil {
		return res, err
	}
	defer func() {
		if doneErr := sink.Done(); doneErr != nil && err == nil {
			err = doneErr
		}
	}()

	question := strings.TrimSpace(req.Question)
	res.StandaloneQuestion = c.condense(ctx, question, req.History)

	retrieved, err := c.retriever.Retrieve(ctx, res.StandaloneQuestion, req.SiteID, req.TopK)
	if err != nil {
		c.fail(ctx, req, sink, "retrieval failed", retrievalErrorMessage, err)
		return res, err
	}
	res.Context = retrieved.Context()
	res.Sources = retrieved.Sources()
	res.EmbeddingTokens = retrieved.EmbeddingTokens

	res.ReachedGeneration = true
	var (
		clean   *sanitizer
		answer  strings.Builder
		sinkErr error
	)
	if req.Public {
		clean = &sanitizer{}
	}
	emit := func(text string) error {
		if text == "" {
			return nil
		}
		if err := sink.Token(text); err != nil {
			sinkErr = err
			return err
		}
		answer.WriteString(text)
		return nil
	}

	_, err = c.chat.StreamComplete(ctx, answerMessages(res.StandaloneQuestion, res.Context), func(chunk string) error {
		if clean != nil {
			chunk = clean.Push(chunk)
		}
		return emit(chunk)
	})
	if clean != nil && sinkErr == nil {
		_ = emit(clean.Flush())
	}
	res.Answer = answer.String()

	if err != nil {
		if sinkErr != nil {
			// the consumer is gone; nothing left to report to
			return res, sinkErr
		}
		c.fail(ctx, req, sink, "generation failed", generationErrorMessage, err)
		return res, err
	}
	return res, nil
}

// condense rewrites question into a standalone one. Any failure falls back to
// the original question so the request still gets an answer.
func (c *Chain) condense(ctx context.Context, question string, history []Turn) string {
	if len(history) == 0 {
		return question
	}
	standalone, err := c.chat.Complete(ctx, condenseMessages(question, history))
	if err != nil {
		c.logger.Warn("condense question failed, using original",
			zap.String("error", logging.SanitizeError(err)))
		return question
	}
	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		return question
	}
	return standalone
}

func (c *Chain) fail(ctx context.Context, req Request, sink Sink, stage, readable string, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		c.logger.Debug(stage+" after client left", zap.String("site_id", req.SiteID))
		return
	}
	c.logger.Error(stage,
		zap.String("site_id", req.SiteID),
		zap.Bool("public", req.Public),
		zap.String("error", logging.SanitizeError(err)))

	msg := readable
	if req.Public {
		msg = PublicErrorMessage
	}
	if sendErr := sink.Error(msg); sendErr != nil {
		c.logger.Debug("send error frame failed", zap.Error(sendErr))
	}
}
