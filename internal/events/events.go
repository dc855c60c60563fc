// Package events publishes job and site state transitions so dashboards can
// follow training without polling.
package events

import (
	"context"
	"time"
)

type Type string

const (
	JobStarted   Type = "job.started"
	JobProgress  Type = "job.progress"
	JobCompleted Type = "job.completed"
	JobFailed    Type = "job.failed"
	SiteStatus   Type = "site.status"
)

type Event struct {
	Type           Type      `json:"type"`
	SiteID         string    `json:"site_id"`
	JobID          string    `json:"job_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	ProcessedPages int       `json:"processed_pages,omitempty"`
	TotalPages     int       `json:"total_pages,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// Notifier never fails the caller; delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// Subscriber streams the events of one site until ctx is done. The returned
// channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, siteID string) (<-chan Event, error)
}

type Bus interface {
	Notifier
	Subscriber
}

// Nop drops everything. Subscriptions stay open and silent until ctx ends.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Subscribe(ctx context.Context, _ string) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
