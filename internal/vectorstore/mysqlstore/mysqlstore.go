// Package mysqlstore keeps chunks in the relational database next to the
// tenant records and ranks them with a brute-force cosine scan restricted to
// one site.
package mysqlstore

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sitebot/internal/document"
	"sitebot/internal/model"
	"sitebot/internal/vectorstore"
)

const insertBatchSize = 100

type Store struct {
	db       *gorm.DB
	dims     int
	pageSize int
}

var _ vectorstore.Store = (*Store)(nil)

func New(db *gorm.DB, dims, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Store{db: db, dims: dims, pageSize: pageSize}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.DocumentChunk{}); err != nil {
		return fmt.Errorf("migrate document chunks failed: %w", err)
	}
	return nil
}

func (s *Store) Store(ctx context.Context, chunks []document.Chunk, vectors [][]float32) error {
	if err := vectorstore.Validate(chunks, vectors, s.dims); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.DocumentChunk{
			ID:       c.ID,
			SiteID:   c.SiteID,
			JobID:    c.JobID,
			Position: c.Index,
			Content:  c.Content,
			Metadata: datatypes.NewJSONType(model.ChunkMetadata{
				Source: c.Metadata.Source,
				Title:  c.Metadata.Title,
				Date:   c.Metadata.Date,
			}),
		}
		rows[i].SetEmbedding(vectors[i])
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("create document chunks failed: %w", err)
	}
	return nil
}

// Search scans id and embedding of the site's rows page by page (keyset on id),
// keeps the best k, then loads the full rows for those ids only.
func (s *Store) Search(ctx context.Context, query []float32, siteID string, k int) ([]vectorstore.ScoredChunk, error) {
	qNorm := vectorstore.Norm(query)
	if qNorm == 0 || k <= 0 {
		return nil, nil
	}

	top := vectorstore.NewTopK(k)
	lastID := ""
	for {
		q := s.db.WithContext(ctx).Model(&model.DocumentChunk{}).
			Select("id", "embedding").
			Where("id > ?", lastID)
		if siteID != "" {
			q = q.Where("site_id = ?", siteID)
		}

		var page []model.DocumentChunk
		if err := q.Order("id").Limit(s.pageSize).Find(&page).Error; err != nil {
			return nil, fmt.Errorf("scan chunk embeddings failed: %w", err)
		}
		for _, row := range page {
			vec, err := row.EmbeddingVector()
			if err != nil {
				return nil, fmt.Errorf("decode embedding for %s failed: %w", row.ID, err)
			}
			top.Offer(row.ID, vectorstore.Cosine(query, vec, qNorm))
		}
		if len(page) < s.pageSize {
			break
		}
		lastID = page[len(page)-1].ID
	}

	hits := top.Results()
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	var rows []model.DocumentChunk
	q := s.db.WithContext(ctx).
		Omit("embedding").
		Where("id IN ?", ids)
	if siteID != "" {
		q = q.Where("site_id = ?", siteID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load top chunks failed: %w", err)
	}

	byID := make(map[string]model.DocumentChunk, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]vectorstore.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, vectorstore.ScoredChunk{Chunk: toChunk(r), Score: h.Score})
	}
	return out, nil
}

func (s *Store) DeleteBySite(ctx context.Context, siteID string) error {
	if err := s.db.WithContext(ctx).Where("site_id = ?", siteID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by site failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteBySiteExceptJob(ctx context.Context, siteID, keepJobID string) error {
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND job_id <> ?", siteID, keepJobID).
		Delete(&model.DocumentChunk{}).Error
	if err != nil {
		return fmt.Errorf("delete superseded chunks failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteByJob(ctx context.Context, jobID string) error {
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by job failed: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toChunk(r model.DocumentChunk) document.Chunk {
	meta := r.Metadata.Data()
	return document.Chunk{
		ID:      r.ID,
		SiteID:  r.SiteID,
		JobID:   r.JobID,
		Index:   r.Position,
		Content: r.Content,
		Metadata: document.Metadata{
			Source: meta.Source,
			Title:  meta.Title,
			Date:   meta.Date,
		},
	}
}
