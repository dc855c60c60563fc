package app

import (
	"context"
	"time"

	"sitebot/internal/model"
	"sitebot/internal/repository"
	"sitebot/internal/usage"
)

type UsageService struct {
	usage       UsageStore
	users       UserStore
	allowances  map[string]int
	defaultPlan string
}

type UsageReport struct {
	From    time.Time                 `json:"from"`
	To      time.Time                 `json:"to"`
	Actions []repository.UsageSummary `json:"actions"`
	Quota   QuotaStatus               `json:"quota"`
}

// QuotaStatus is the chat allowance of the current calendar month.
// Allowance -1 means unlimited.
type QuotaStatus struct {
	Plan        string    `json:"plan"`
	PeriodStart time.Time `json:"period_start"`
	Allowance   int       `json:"allowance"`
	Used        int64     `json:"used"`
}

func NewUsageService(usageStore UsageStore, users UserStore, allowances map[string]int, defaultPlan string) *UsageService {
	return &UsageService{
		usage:       usageStore,
		users:       users,
		allowances:  allowances,
		defaultPlan: defaultPlan,
	}
}

// Report aggregates usage in [from, to). Zero bounds default to the current
// month.
func (s *UsageService) Report(ctx context.Context, userID uint, from, to time.Time) (*UsageReport, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	now := time.Now().UTC()
	periodStart := usage.PeriodStart(now)
	if from.IsZero() {
		from = periodStart
	}
	if to.IsZero() {
		to = now.Add(time.Second)
	}
	if !from.Before(to) {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrOwnerNotFound
	}

	actions, err := s.usage.Summarize(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	used, err := s.usage.CountSince(ctx, userID, model.UsageActionChat, periodStart)
	if err != nil {
		return nil, err
	}

	plan := user.Plan
	allowance, ok := s.allowances[plan]
	if !ok {
		plan = s.defaultPlan
		allowance, ok = s.allowances[plan]
		if !ok {
			allowance = -1
		}
	}

	if actions == nil {
		actions = []repository.UsageSummary{}
	}
	return &UsageReport{
		From:    from,
		To:      to,
		Actions: actions,
		Quota: QuotaStatus{
			Plan:        plan,
			PeriodStart: periodStart,
			Allowance:   allowance,
			Used:        used,
		},
	}, nil
}
