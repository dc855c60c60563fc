package app

import (
	"context"
	"time"

	"sitebot/internal/model"
	"sitebot/internal/repository"
)

// The services depend on these narrow views of the repositories.

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
}

type SiteStore interface {
	Create(ctx context.Context, site *model.Site) error
	GetByID(ctx context.Context, id string) (*model.Site, error)
	GetByIDAndOwner(ctx context.Context, id string, ownerID uint) (*model.Site, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Site, error)
	UpdateSettings(ctx context.Context, site *model.Site) error
	DeleteUnlessTraining(ctx context.Context, id string) (bool, error)
}

type JobStore interface {
	GetByID(ctx context.Context, id string) (*model.TrainingJob, error)
	ListBySite(ctx context.Context, siteID string, limit int) ([]model.TrainingJob, error)
}

type UsageStore interface {
	CountSince(ctx context.Context, userID uint, action model.UsageAction, since time.Time) (int64, error)
	Summarize(ctx context.Context, userID uint, from, to time.Time) ([]repository.UsageSummary, error)
}
