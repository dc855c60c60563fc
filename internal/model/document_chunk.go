package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ChunkMetadata is the source information carried by every chunk of a page.
type ChunkMetadata struct {
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
	Date   string `json:"date,omitempty"`
}

// DocumentChunk stores a text chunk and its embedding for the relational
// vector backend. Embedding is stored as JSON array of float32 for portability.
type DocumentChunk struct {
	ID        string                            `gorm:"type:char(36);primaryKey" json:"id"`
	SiteID    string                            `gorm:"type:char(36);not null;index:idx_chunk_site_job" json:"site_id"`
	JobID     string                            `gorm:"type:char(36);not null;index:idx_chunk_site_job;index" json:"job_id"`
	Position  int                               `gorm:"not null" json:"position"`
	Content   string                            `gorm:"type:text;not null" json:"content"`
	Embedding string                            `gorm:"type:mediumtext" json:"-"` // JSON array of float32
	Metadata  datatypes.JSONType[ChunkMetadata] `json:"metadata"`
	CreatedAt time.Time                         `json:"created_at"`
}

// EmbeddingVector parses the stored embedding. An empty column yields nil.
func (c *DocumentChunk) EmbeddingVector() ([]float32, error) {
	if c.Embedding == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(c.Embedding), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SetEmbedding stores the embedding as JSON.
func (c *DocumentChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
