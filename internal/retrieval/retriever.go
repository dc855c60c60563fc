// Package retrieval answers "which chunks of this site are relevant to the
// question" by embedding the query once and running a tenant-scoped search.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sitebot/internal/ai"
	"sitebot/internal/usage"
	"sitebot/internal/vectorstore"
)

const DefaultTopK = 10

var ErrTenantRequired = errors.New("site id is required for retrieval")

type Result struct {
	Chunks          []vectorstore.ScoredChunk
	EmbeddingTokens int
}

// Context joins chunk contents in rank order, the way they are shown to the model.
func (r *Result) Context() string {
	if r == nil || len(r.Chunks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Sources lists distinct chunk sources in rank order.
func (r *Result) Sources() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Chunks))
	var out []string
	for _, c := range r.Chunks {
		src := c.Metadata.Source
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

type Retriever struct {
	embedder      ai.Embedder
	store         vectorstore.Store
	defaultK      int
	allowUnscoped bool
	logger        *zap.Logger
}

// New builds a retriever. allowUnscoped lets an empty site id search every
// tenant; production deployments leave it off.
func New(embedder ai.Embedder, store vectorstore.Store, defaultK int, allowUnscoped bool, logger *zap.Logger) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	return &Retriever{
		embedder:      embedder,
		store:         store,
		defaultK:      defaultK,
		allowUnscoped: allowUnscoped,
		logger:        logger.Named("retrieval"),
	}
}

// Retrieve returns at most k chunks of siteID, most similar first. k <= 0
// uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query, siteID string, k int) (*Result, error) {
	if siteID == "" && !r.allowUnscoped {
		return nil, ErrTenantRequired
	}
	if k <= 0 {
		k = r.defaultK
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	hits, err := r.store.Search(ctx, vec, siteID, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	r.logger.Debug("retrieved chunks",
		zap.String("site_id", siteID),
		zap.Int("k", k),
		zap.Int("hits", len(hits)))

	return &Result{
		Chunks:          hits,
		EmbeddingTokens: usage.EstimateTokens(query),
	}, nil
}
