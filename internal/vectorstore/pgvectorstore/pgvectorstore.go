// Package pgvectorstore keeps chunks in PostgreSQL with the pgvector extension
// and lets the database compute exact cosine KNN inside one site's rows.
package pgvectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sitebot/internal/document"
	"sitebot/internal/model"
	"sitebot/internal/vectorstore"
)

const insertBatchSize = 100

type chunkRow struct {
	ID        string                                  `gorm:"primaryKey"`
	SiteID    string                                  `gorm:"not null;index"`
	JobID     string                                  `gorm:"not null;index"`
	Position  int                                     `gorm:"not null"`
	Content   string                                  `gorm:"not null"`
	Embedding pgvector.Vector                         `gorm:"not null"`
	Metadata  datatypes.JSONType[model.ChunkMetadata] `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (chunkRow) TableName() string { return "document_chunks" }

type scoredRow struct {
	ID       string
	SiteID   string
	JobID    string
	Position int
	Content  string
	Metadata datatypes.JSONType[model.ChunkMetadata]
	Score    float64
}

type Store struct {
	db   *gorm.DB
	dims int
}

var _ vectorstore.Store = (*Store)(nil)

func New(db *gorm.DB, dims int) *Store {
	return &Store{db: db, dims: dims}
}

// Migrate creates the chunk table with a fixed-size vector column. Only a
// btree index on site_id is created: the planner narrows to the tenant first
// and then sorts by exact distance.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id text PRIMARY KEY,
			site_id text NOT NULL,
			job_id text NOT NULL,
			position integer NOT NULL,
			content text NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_site_id ON document_chunks (site_id)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_job_id ON document_chunks (job_id)`,
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate pgvector chunks failed: %w", err)
		}
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

	rows := make([]chunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = chunkRow{
			ID:        c.ID,
			SiteID:    c.SiteID,
			JobID:     c.JobID,
			Position:  c.Index,
			Content:   c.Content,
			Embedding: pgvector.NewVector(vectors[i]),
			Metadata: datatypes.NewJSONType(model.ChunkMetadata{
				Source: c.Metadata.Source,
				Title:  c.Metadata.Title,
				Date:   c.Metadata.Date,
			}),
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("create pgvector chunks failed: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, siteID string, k int) ([]vectorstore.ScoredChunk, error) {
	if vectorstore.Norm(query) == 0 || k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)

	var rows []scoredRow
	var err error
	if siteID != "" {
		err = s.db.WithContext(ctx).Raw(`
			SELECT id, site_id, job_id, position, content, metadata, 1 - (embedding <=> ?) AS score
			FROM document_chunks
			WHERE site_id = ?
			ORDER BY embedding <=> ?
			LIMIT ?`, vec, siteID, vec, k).Scan(&rows).Error
	} else {
		err = s.db.WithContext(ctx).Raw(`
			SELECT id, site_id, job_id, position, content, metadata, 1 - (embedding <=> ?) AS score
			FROM document_chunks
			ORDER BY embedding <=> ?
			LIMIT ?`, vec, vec, k).Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}

	out := make([]vectorstore.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		meta := r.Metadata.Data()
		out = append(out, vectorstore.ScoredChunk{
			Chunk: document.Chunk{
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
			},
			Score: float32(r.Score),
		})
	}
	return out, nil
}

func (s *Store) DeleteBySite(ctx context.Context, siteID string) error {
	if err := s.db.WithContext(ctx).Where("site_id = ?", siteID).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("delete pgvector chunks by site failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteBySiteExceptJob(ctx context.Context, siteID, keepJobID string) error {
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND job_id <> ?", siteID, keepJobID).
		Delete(&chunkRow{}).Error
	if err != nil {
		return fmt.Errorf("delete superseded pgvector chunks failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteByJob(ctx context.Context, jobID string) error {
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("delete pgvector chunks by job failed: %w", err)
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
