package events

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process bus for single-node deployments without Redis.
// Slow subscribers miss events rather than blocking publishers.
type Local struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[chan Event]struct{})}
}

func (l *Local) Publish(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs[ev.SiteID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (l *Local) Subscribe(ctx context.Context, siteID string) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	l.mu.Lock()
	if l.subs[siteID] == nil {
		l.subs[siteID] = make(map[chan Event]struct{})
	}
	l.subs[siteID][ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs[siteID], ch)
		if len(l.subs[siteID]) == 0 {
			delete(l.subs, siteID)
		}
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}
