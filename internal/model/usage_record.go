package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UsageAction string

const (
	UsageActionChat      UsageAction = "chat"
	UsageActionEmbedding UsageAction = "embedding"
	UsageActionTraining  UsageAction = "training"
)

// UsageRecord is an append-only accounting entry.
type UsageRecord struct {
	ID           string            `gorm:"type:char(36);primaryKey" json:"id"`
	UserID       uint              `gorm:"not null;index:idx_usage_user_time" json:"user_id"`
	SiteID       string            `gorm:"type:char(36);index" json:"site_id"`
	Action       UsageAction       `gorm:"size:16;not null;index" json:"action"`
	InputTokens  int               `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens int               `gorm:"not null;default:0" json:"output_tokens"`
	Tokens       int               `gorm:"not null;default:0" json:"tokens"`
	CostUSD      float64           `gorm:"not null;default:0" json:"cost_usd"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"index:idx_usage_user_time" json:"created_at"`
}

func (u *UsageRecord) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
