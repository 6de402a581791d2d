package engine

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// BudgetSummary is a project's budget position. Limit, Consumed and
// Remaining are hours for an hours budget and currency for an amount
// budget.
type BudgetSummary struct {
	Type            model.BudgetType `json:"type"`
	Limit           float64          `json:"limit"`
	Consumed        float64          `json:"consumed"`
	Remaining       float64          `json:"remaining"`
	ConsumedSeconds int64            `json:"consumed_seconds"`
}

// budgetSummary computes consumption from every closed entry of the project
// in the timer's context plus the running timer's in-flight seconds.
// Returns nil if the project has no budget.
func (e *Engine) budgetSummary(ctx context.Context, tx *store.Tx, t *model.RunningTimer, p *model.Project, now time.Time) (*BudgetSummary, error) {
	var limit float64
	switch p.BudgetType {
	case model.BudgetHours:
		limit = p.BudgetHours
	case model.BudgetAmount:
		limit = p.BudgetAmount
	}
	if limit <= 0 {
		return nil, nil
	}

	closed, err := tx.SumClosedSeconds(ctx, p.ID, t.Context)
	if err != nil {
		return nil, err
	}
	inflight := model.ElapsedSeconds(t.StartedAt, now)
	if inflight < 0 {
		inflight = 0
	}
	total := closed + inflight
	hours := float64(total) / 3600

	consumed := hours
	if p.BudgetType == model.BudgetAmount {
		consumed = hours * p.HourlyRate
	}
	return &BudgetSummary{
		Type:            p.BudgetType,
		Limit:           limit,
		Consumed:        consumed,
		Remaining:       limit - consumed,
		ConsumedSeconds: total,
	}, nil
}

// checkBudget decides which budget alerts a heartbeat raises and stamps the
// dedup fields on t. The caller persists t in the same transaction and sends
// the returned alerts after commit.
func (e *Engine) checkBudget(ctx context.Context, tx *store.Tx, t *model.RunningTimer, settings model.UserSettings, now time.Time) ([]model.Alert, error) {
	if t.Legacy() || t.IsBreak() {
		return nil, nil
	}
	p, err := e.dir.GetProject(ctx, t.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// A stale cross-workspace reference never alerts.
	if p.WorkspaceID != t.Context.WorkspaceID {
		return nil, nil
	}
	if p.Context().IsPersonal() && p.OwnerID != t.UserID {
		return nil, nil
	}

	sum, err := e.budgetSummary(ctx, tx, t, p, now)
	if err != nil || sum == nil {
		return nil, err
	}

	if sum.Remaining <= 0 {
		if t.OverrunAlertSentAt != nil && now.Sub(*t.OverrunAlertSentAt) < e.th.OverrunResend {
			return nil, nil
		}
		t.OverrunAlertSentAt = &now
		return []model.Alert{alert.BudgetOverrun(now, t.UserID, p, -sum.Remaining)}, nil
	}

	if !settings.BudgetWarningEnabled {
		return nil, nil
	}
	threshold := settings.BudgetWarningThresholdHours
	if sum.Type == model.BudgetAmount {
		threshold = settings.BudgetWarningThresholdAmount
	}
	if sum.Remaining > threshold {
		return nil, nil
	}
	if t.BudgetWarningType == sum.Type && t.BudgetWarningSentAt != nil && now.Sub(*t.BudgetWarningSentAt) < e.th.WarningResend {
		return nil, nil
	}
	t.BudgetWarningSentAt = &now
	t.BudgetWarningType = sum.Type
	return []model.Alert{alert.BudgetWarning(now, t.UserID, p, sum.Remaining)}, nil
}
