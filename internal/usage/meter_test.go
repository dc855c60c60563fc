package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitebot/internal/model"
)

type memoryRecorder struct {
	records []*model.UsageRecord
	err     error
	ctxErr  error
}

func (m *memoryRecorder) Record(ctx context.Context, rec *model.UsageRecord) error {
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func TestMeter_RecordChat(t *testing.T) {
	rec := &memoryRecorder{}
	m := NewMeter(rec, Rates{InputPerMillion: 1, OutputPerMillion: 2, EmbeddingPerMillion: 0.5}, zap.NewNop())

	m.RecordChat(testContext(t), ChatUsage{
		UserID:          7,
		SiteID:          "site-1",
		Question:        "abcdefgh",
		History:         []string{"abcd", "abcd"},
		Context:         "abcdefghijkl",
		Answer:          "abcdef",
		EmbeddingTokens: 2,
		Public:          true,
	})

	require.Len(t, rec.records, 2)
	chat := rec.records[0]
	assert.Equal(t, model.UsageActionChat, chat.Action)
	assert.Equal(t, uint(7), chat.UserID)
	assert.Equal(t, "site-1", chat.SiteID)
	assert.Equal(t, 2+1+1+3, chat.InputTokens)
	assert.Equal(t, 2, chat.OutputTokens)
	assert.Equal(t, 9, chat.Tokens)
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, true, chat.Metadata["public"])

	emb := rec.records[1]
	assert.Equal(t, model.UsageActionEmbedding, emb.Action)
	assert.Equal(t, 2, emb.Tokens)
	assert.InDelta(t, 1e-6, emb.CostUSD, 1e-12)
}

func TestMeter_RecordChatWithoutEmbedding(t *testing.T) {
	rec := &memoryRecorder{}
	m := NewMeter(rec, Rates{}, zap.NewNop())

	m.RecordChat(testContext(t), ChatUsage{UserID: 1, SiteID: "s", Question: "q"})
	require.Len(t, rec.records, 1)
}

func TestMeter_RecordsAfterCancellation(t *testing.T) {
	rec := &memoryRecorder{}
	m := NewMeter(rec, Rates{}, zap.NewNop())

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	m.RecordTraining(ctx, 1, "site", "job", 100, 4)

	require.Len(t, rec.records, 1)
	assert.NoError(t, rec.ctxErr)
	assert.Equal(t, model.UsageActionTraining, rec.records[0].Action)
	assert.Equal(t, "job", rec.records[0].Metadata["job_id"])
}

func TestMeter_RecorderFailureIsSwallowed(t *testing.T) {
	m := NewMeter(&memoryRecorder{err: errors.New("boom")}, Rates{}, zap.NewNop())
	assert.NotPanics(t, func() {
		m.RecordChat(testContext(t), ChatUsage{UserID: 1, Question: "q"})
	})
}
