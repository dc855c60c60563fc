package usage

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitebot/internal/logging"
	"sitebot/internal/model"
)

// ChatUsage describes one answered (or failed) chat turn.
type ChatUsage struct {
	UserID          uint
	SiteID          string
	Question        string
	History         []string
	Context         string
	Answer          string
	EmbeddingTokens int
	Public          bool
	Failed          bool
}

// Meter turns operations into usage records. Recording never fails the
// caller: errors are logged and dropped.
type Meter struct {
	recorder Recorder
	rates    Rates
	logger   *zap.Logger
}

func NewMeter(recorder Recorder, rates Rates, logger *zap.Logger) *Meter {
	return &Meter{
		recorder: recorder,
		rates:    rates,
		logger:   logger.Named("usage"),
	}
}

func (m *Meter) Rates() Rates {
	return m.rates
}

// RecordChat writes the chat record and, when retrieval embedded the query,
// a separate embedding record.
func (m *Meter) RecordChat(ctx context.Context, u ChatUsage) {
	input := EstimateTokens(u.Question) + EstimateTokens(u.Context)
	for _, h := range u.History {
		input += EstimateTokens(h)
	}
	output := EstimateTokens(u.Answer)

	m.record(ctx, &model.UsageRecord{
		ID:           uuid.NewString(),
		UserID:       u.UserID,
		SiteID:       u.SiteID,
		Action:       model.UsageActionChat,
		InputTokens:  input,
		OutputTokens: output,
		Tokens:       input + output,
		CostUSD:      m.rates.ChatCost(input, output),
		Metadata: map[string]any{
			"public": u.Public,
			"failed": u.Failed,
		},
	})

	if u.EmbeddingTokens > 0 {
		m.record(ctx, &model.UsageRecord{
			ID:          uuid.NewString(),
			UserID:      u.UserID,
			SiteID:      u.SiteID,
			Action:      model.UsageActionEmbedding,
			InputTokens: u.EmbeddingTokens,
			Tokens:      u.EmbeddingTokens,
			CostUSD:     m.rates.EmbeddingCost(u.EmbeddingTokens),
			Metadata:    map[string]any{"purpose": "query"},
		})
	}
}

// RecordTraining accounts the embedding tokens spent ingesting a site.
func (m *Meter) RecordTraining(ctx context.Context, userID uint, siteID, jobID string, tokens, chunks int) {
	m.record(ctx, &model.UsageRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		SiteID:      siteID,
		Action:      model.UsageActionTraining,
		InputTokens: tokens,
		Tokens:      tokens,
		CostUSD:     m.rates.EmbeddingCost(tokens),
		Metadata: map[string]any{
			"job_id": jobID,
			"chunks": chunks,
		},
	})
}

func (m *Meter) record(ctx context.Context, rec *model.UsageRecord) {
	// The request may already be gone; the record must still be written.
	if err := m.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Warn("record usage failed",
			zap.String("action", string(rec.Action)),
			zap.String("site_id", rec.SiteID),
			zap.String("error", logging.SanitizeError(err)))
	}
}
