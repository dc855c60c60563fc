package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitebot/internal/model"
	"sitebot/internal/qa"
	"sitebot/internal/repository"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uint]*model.User
	next  uint
}

func newMemUsers(users ...*model.User) *memUsers {
	m := &memUsers{users: make(map[uint]*model.User)}
	for _, u := range users {
		m.users[u.ID] = u
		m.next = max(m.next, u.ID)
	}
	return m
}

func (m *memUsers) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	user.ID = m.next
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) find(match func(*model.User) bool) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (m *memUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id }), nil
}

type memSites struct {
	mu      sync.Mutex
	sites   map[string]*model.Site
	gets    int
	deleted []string

	// beforeDelete runs just before the conditional delete.
	beforeDelete func(m *memSites)
}

func newMemSites(sites ...*model.Site) *memSites {
	m := &memSites{sites: make(map[string]*model.Site)}
	for _, s := range sites {
		m.sites[s.ID] = s
	}
	return m
}

func (m *memSites) Create(_ context.Context, site *model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	cp := *site
	m.sites[site.ID] = &cp
	return nil
}

func (m *memSites) GetByID(_ context.Context, id string) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSites) GetByIDAndOwner(ctx context.Context, id string, ownerID uint) (*model.Site, error) {
	s, err := m.GetByID(ctx, id)
	if err != nil || s == nil || s.OwnerID != ownerID {
		return nil, err
	}
	return s, nil
}

func (m *memSites) ListByOwner(_ context.Context, ownerID uint) ([]model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Site
	for _, s := range m.sites {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSites) UpdateSettings(_ context.Context, site *model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sites[site.ID]; ok {
		s.Name = site.Name
		s.SitemapURL = site.SitemapURL
		s.IsEmbedEnabled = site.IsEmbedEnabled
	}
	return nil
}

func (m *memSites) DeleteUnlessTraining(_ context.Context, id string) (bool, error) {
	if m.beforeDelete != nil {
		m.beforeDelete(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok || s.Status == model.SiteStatusTraining {
		return false, nil
	}
	delete(m.sites, id)
	m.deleted = append(m.deleted, id)
	return true, nil
}

type memJobs struct {
	jobs map[string]*model.TrainingJob
}

func (m *memJobs) GetByID(_ context.Context, id string) (*model.TrainingJob, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return j, nil
}

func (m *memJobs) ListBySite(_ context.Context, siteID string, limit int) ([]model.TrainingJob, error) {
	var out []model.TrainingJob
	for _, j := range m.jobs {
		if j.SiteID == siteID && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

type fakeTrainer struct {
	started []string
	err     error
}

func (f *fakeTrainer) Start(_ context.Context, siteID string) (*model.TrainingJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, siteID)
	return &model.TrainingJob{ID: uuid.NewString(), SiteID: siteID, Status: model.JobStatusRunning}, nil
}

type fakeQuota struct {
	allowed bool
	calls   int
}

func (f *fakeQuota) Allowed(context.Context, *model.User, model.UsageAction) (bool, error) {
	f.calls++
	return f.allowed, nil
}

// fakeStreamer answers with a fixed text and behaves like the qa chain
// towards the sink.
type fakeStreamer struct {
	answer   string
	err      error
	requests []qa.Request
}

func (f *fakeStreamer) Stream(_ context.Context, req qa.Request, sink qa.Sink) (*qa.Result, error) {
	f.requests = append(f.requests, req)
	_ = sink.Token("")
	defer sink.Done()
	if f.err != nil {
		_ = sink.Error("failed")
		return &qa.Result{ReachedGeneration: true}, f.err
	}
	_ = sink.Token(f.answer)
	return &qa.Result{Answer: f.answer, Context: "ctx", EmbeddingTokens: 2, ReachedGeneration: true}, nil
}

type recordingSink struct {
	tokens []string
	errors []string
	done   int
}

func (s *recordingSink) Token(text string) error { s.tokens = append(s.tokens, text); return nil }
func (s *recordingSink) Error(msg string) error  { s.errors = append(s.errors, msg); return nil }
func (s *recordingSink) Done() error             { s.done++; return nil }

type memUsageRecorder struct {
	mu      sync.Mutex
	records []*model.UsageRecord
}

func (m *memUsageRecorder) Record(_ context.Context, rec *model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

type memUsageStore struct {
	summaries []repository.UsageSummary
	count     int64
}

func (m *memUsageStore) CountSince(context.Context, uint, model.UsageAction, time.Time) (int64, error) {
	return m.count, nil
}

func (m *memUsageStore) Summarize(context.Context, uint, time.Time, time.Time) ([]repository.UsageSummary, error) {
	return m.summaries, nil
}
