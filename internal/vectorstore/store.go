// Package vectorstore persists embedded chunks and answers tenant-scoped
// similarity queries.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"sitebot/internal/document"
)

var (
	ErrLengthMismatch = errors.New("chunks and vectors length mismatch")
	ErrMissingTenant  = errors.New("chunk has no site id")
)

// ScoredChunk is a search hit; Score is cosine similarity in [-1, 1].
type ScoredChunk struct {
	document.Chunk
	Score float32
}

// Store is implemented by every vector backend.
//
// Search restricts candidates to siteID inside the backend before ranking, so
// another tenant's rows never compete for the k slots. A site without rows
// yields an empty result. An empty siteID searches all tenants and is only
// reachable from unscoped deployments.
type Store interface {
	Store(ctx context.Context, chunks []document.Chunk, vectors [][]float32) error
	Search(ctx context.Context, query []float32, siteID string, k int) ([]ScoredChunk, error)
	DeleteBySite(ctx context.Context, siteID string) error
	// DeleteBySiteExceptJob removes chunks of earlier runs once keepJobID succeeded.
	DeleteBySiteExceptJob(ctx context.Context, siteID, keepJobID string) error
	DeleteByJob(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
}

// Validate checks the preconditions shared by all Store implementations.
func Validate(chunks []document.Chunk, vectors [][]float32, dims int) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}
	for i, c := range chunks {
		if c.SiteID == "" {
			return fmt.Errorf("%w: chunk %d", ErrMissingTenant, i)
		}
		if dims > 0 && len(vectors[i]) != dims {
			return fmt.Errorf("chunk %d: vector has %d dimensions, want %d", i, len(vectors[i]), dims)
		}
	}
	return nil
}
