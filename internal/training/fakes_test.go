package training

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"sitebot/internal/model"
)

type memSites struct {
	mu    sync.Mutex
	sites map[string]*model.Site

	gets int
	// getErrs fails the n-th GetByID call (1-based).
	getErrs map[int]error
	// markReadyErrs are returned by successive MarkReady calls.
	markReadyErrs []error
}

func newMemSites(sites ...*model.Site) *memSites {
	m := &memSites{sites: make(map[string]*model.Site)}
	for _, s := range sites {
		m.sites[s.ID] = s
	}
	return m
}

func (m *memSites) GetByID(_ context.Context, id string) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if err := m.getErrs[m.gets]; err != nil {
		return nil, err
	}
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSites) TryBeginTraining(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok || s.Status == model.SiteStatusTraining {
		return false, nil
	}
	s.Status = model.SiteStatusTraining
	return true, nil
}

func (m *memSites) SetStatus(_ context.Context, id string, status model.SiteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sites[id]; ok {
		s.Status = status
	}
	return nil
}

func (m *memSites) MarkReady(_ context.Context, id string, trainedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.markReadyErrs) > 0 {
		err := m.markReadyErrs[0]
		m.markReadyErrs = m.markReadyErrs[1:]
		return err
	}
	if s, ok := m.sites[id]; ok {
		s.Status = model.SiteStatusReady
		s.LastTrainedAt = &trainedAt
	}
	return nil
}

func (m *memSites) status(id string) model.SiteStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sites[id].Status
}

type memJobs struct {
	mu       sync.Mutex
	jobs     map[string]*model.TrainingJob
	progress []int

	markRunningErr error
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*model.TrainingJob)}
}

func (m *memJobs) Create(_ context.Context, job *model.TrainingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id string) (*model.TrainingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) MarkRunning(_ context.Context, id string, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markRunningErr != nil {
		return false, m.markRunningErr
	}
	j, ok := m.jobs[id]
	if !ok || j.Status != model.JobStatusPending {
		return false, nil
	}
	j.Status = model.JobStatusRunning
	j.StartedAt = &startedAt
	return true, nil
}

func (m *memJobs) SetPlan(_ context.Context, id string, total int, meta model.JobMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == model.JobStatusRunning {
		j.TotalPages = total
		j.Metadata = datatypes.NewJSONType(meta)
	}
	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, id string, processed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == model.JobStatusRunning && j.ProcessedPages < processed {
		j.ProcessedPages = processed
		m.progress = append(m.progress, processed)
	}
	return nil
}

func (m *memJobs) Complete(_ context.Context, id string, processed int, finishedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != model.JobStatusRunning {
		return false, nil
	}
	j.Status = model.JobStatusCompleted
	j.ProcessedPages = max(j.ProcessedPages, processed)
	j.FinishedAt = &finishedAt
	return true, nil
}

func (m *memJobs) Fail(_ context.Context, id, message string, finishedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.Status = model.JobStatusFailed
	j.ErrorMessage = message
	j.FinishedAt = &finishedAt
	return true, nil
}

func (m *memJobs) ListStaleRunning(_ context.Context, before time.Time) ([]model.TrainingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrainingJob
	for _, j := range m.jobs {
		if j.Status == model.JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(before) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) job(id string) model.TrainingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

// recordingDispatcher queues tasks without running them.
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}
