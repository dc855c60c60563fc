package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SiteStatus string

const (
	SiteStatusIdle     SiteStatus = "idle"
	SiteStatusTraining SiteStatus = "training"
	SiteStatusReady    SiteStatus = "ready"
	SiteStatusError    SiteStatus = "error"
)

// Site is a tenant-owned content source. Its ID is the tenant tag carried by
// every stored chunk.
type Site struct {
	ID             string     `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID        uint       `gorm:"not null;index" json:"owner_id"`
	Name           string     `gorm:"size:128" json:"name"`
	BaseURL        string     `gorm:"size:2048;not null" json:"base_url"`
	SitemapURL     string     `gorm:"size:2048" json:"sitemap_url,omitempty"`
	Status         SiteStatus `gorm:"size:16;not null;default:idle;index" json:"status"`
	IsEmbedEnabled bool       `gorm:"not null;default:true" json:"is_embed_enabled"`
	LastTrainedAt  *time.Time `json:"last_trained_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Site) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SiteStatusIdle
	}
	return nil
}
