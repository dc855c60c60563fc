// Package memory is an in-process vector store for tests and single-node
// development. Rows are partitioned by site so a search only scans its tenant.
package memory

import (
	"context"
	"sync"

	"sitebot/internal/document"
	"sitebot/internal/vectorstore"
)

type entry struct {
	chunk  document.Chunk
	vector []float32
}

type Store struct {
	mu     sync.RWMutex
	dims   int
	bySite map[string][]entry
}

var _ vectorstore.Store = (*Store)(nil)

// New returns an empty store. dims <= 0 disables the dimension check.
func New(dims int) *Store {
	return &Store{
		dims:   dims,
		bySite: make(map[string][]entry),
	}
}

func (s *Store) Store(_ context.Context, chunks []document.Chunk, vectors [][]float32) error {
	if err := vectorstore.Validate(chunks, vectors, s.dims); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.bySite[c.SiteID] = append(s.bySite[c.SiteID], entry{chunk: c, vector: vec})
	}
	return nil
}

func (s *Store) Search(_ context.Context, query []float32, siteID string, k int) ([]vectorstore.ScoredChunk, error) {
	qNorm := vectorstore.Norm(query)
	if qNorm == 0 || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []entry
	if siteID != "" {
		candidates = s.bySite[siteID]
	} else {
		for _, entries := range s.bySite {
			candidates = append(candidates, entries...)
		}
	}

	top := vectorstore.NewTopK(k)
	byID := make(map[string]document.Chunk, len(candidates))
	for _, e := range candidates {
		top.Offer(e.chunk.ID, vectorstore.Cosine(query, e.vector, qNorm))
		byID[e.chunk.ID] = e.chunk
	}

	hits := top.Results()
	out := make([]vectorstore.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, vectorstore.ScoredChunk{Chunk: byID[h.ID], Score: h.Score})
	}
	return out, nil
}

func (s *Store) DeleteBySite(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bySite, siteID)
	return nil
}

func (s *Store) DeleteBySiteExceptJob(_ context.Context, siteID, keepJobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySite[siteID] = filter(s.bySite[siteID], func(e entry) bool { return e.chunk.JobID == keepJobID })
	return nil
}

func (s *Store) DeleteByJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for site, entries := range s.bySite {
		s.bySite[site] = filter(entries, func(e entry) bool { return e.chunk.JobID != jobID })
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// Count returns the number of chunks stored for a site.
func (s *Store) Count(siteID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySite[siteID])
}

func filter(entries []entry, keep func(entry) bool) []entry {
	out := entries[:0]
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
