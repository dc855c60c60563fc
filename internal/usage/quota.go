package usage

import (
	"context"
	"errors"
	"time"

	"sitebot/internal/model"
)

var ErrQuotaExceeded = errors.New("monthly chat quota exceeded")

// Counter counts a user's records of one action since a point in time.
type Counter interface {
	CountSince(ctx context.Context, userID uint, action model.UsageAction, since time.Time) (int64, error)
}

// QuotaChecker compares the user's usage in the current calendar month (UTC)
// with the allowance of their plan. Negative allowances are unlimited.
type QuotaChecker struct {
	counter     Counter
	allowances  map[string]int
	defaultPlan string
	now         func() time.Time
}

func NewQuotaChecker(counter Counter, allowances map[string]int, defaultPlan string) *QuotaChecker {
	return &QuotaChecker{
		counter:     counter,
		allowances:  allowances,
		defaultPlan: defaultPlan,
		now:         time.Now,
	}
}

// Allowed reports whether the user may perform one more action this period.
// Only chat turns are metered against a plan allowance.
func (q *QuotaChecker) Allowed(ctx context.Context, user *model.User, action model.UsageAction) (bool, error) {
	if action != model.UsageActionChat {
		return true, nil
	}

	plan := user.Plan
	if _, ok := q.allowances[plan]; !ok {
		plan = q.defaultPlan
	}
	allowance, ok := q.allowances[plan]
	if !ok || allowance < 0 {
		return true, nil
	}
	if allowance == 0 {
		return false, nil
	}

	used, err := q.counter.CountSince(ctx, user.ID, action, PeriodStart(q.now()))
	if err != nil {
		return false, err
	}
	return used < int64(allowance), nil
}

// PeriodStart is the first instant of t's calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
