package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the job can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const (
	DetectionSitemap = "sitemap"
	DetectionBaseURL = "base_url"
)

// JobMetadata records how the URL set of a run was obtained.
type JobMetadata struct {
	DetectionMethod string   `json:"detection_method"`
	URLCount        int      `json:"url_count"`
	URLs            []string `json:"urls"`
}

type TrainingJob struct {
	ID             string                          `gorm:"type:char(36);primaryKey" json:"id"`
	SiteID         string                          `gorm:"type:char(36);not null;index" json:"site_id"`
	Status         JobStatus                       `gorm:"size:16;not null;index" json:"status"`
	TotalPages     int                             `gorm:"not null;default:0" json:"total_pages"`
	ProcessedPages int                             `gorm:"not null;default:0" json:"processed_pages"`
	StartedAt      *time.Time                      `json:"started_at,omitempty"`
	FinishedAt     *time.Time                      `json:"finished_at,omitempty"`
	ErrorMessage   string                          `gorm:"type:text" json:"error_message,omitempty"`
	Metadata       datatypes.JSONType[JobMetadata] `json:"metadata"`
	CreatedAt      time.Time                       `json:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

func (j *TrainingJob) BeforeCreate(_ *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}
