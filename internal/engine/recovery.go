package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Bluenode2024/POCBE/internal/domain"
)

// RecoveryReport counts what a recovery run did.
type RecoveryReport struct {
	Rearmed    int `json:"rearmed"`
	Reassigned int `json:"reassigned"`
	Succeeded  int `json:"succeeded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Recover rebuilds the timer table from stored rows. Pending and validating
// validations still inside their window get a timer for the remaining time;
// overdue ones are transitioned before Recover returns. Per-row failures are
// logged and counted; only a failed scan aborts the run.
func (e Engine) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	now := e.now()

	pending, err := e.Repo.ListValidationsByStatus(ctx, domain.ValidationPending)
	if err != nil {
		return report, storeErr("list pending validations", err)
	}
	for _, v := range pending {
		remaining, err := remainingWindow(v, now, e.Config.PendingWindow())
		if err != nil {
			report.Failed++
			e.log().Error("recovery: bad timestamp", "validation_id", v.ID, "err", err)
			continue
		}
		if remaining > 0 {
			e.armPending(v.ID, remaining)
			report.Rearmed++
			continue
		}
		applied, err := e.FirePendingTimeout(ctx, v.ID)
		switch {
		case err != nil:
			report.Failed++
			e.log().Error("recovery: reassignment failed", "validation_id", v.ID, "err", err)
		case applied:
			report.Reassigned++
		default:
			report.Skipped++
		}
	}

	validating, err := e.Repo.ListValidationsByStatus(ctx, domain.ValidationValidating)
	if err != nil {
		return report, storeErr("list validating validations", err)
	}
	for _, v := range validating {
		remaining, err := remainingWindow(v, now, e.Config.DisputeWindow())
		if err != nil {
			report.Failed++
			e.log().Error("recovery: bad timestamp", "validation_id", v.ID, "err", err)
			continue
		}
		if remaining > 0 {
			e.armValidating(v.ID, remaining)
			report.Rearmed++
			continue
		}
		applied, err := e.FireValidatingTimeout(ctx, v.ID)
		switch {
		case err != nil:
			report.Failed++
			e.log().Error("recovery: completion failed", "validation_id", v.ID, "err", err)
		case applied:
			report.Succeeded++
		default:
			report.Skipped++
		}
	}
	e.log().Info("recovery complete",
		"rearmed", report.Rearmed, "reassigned", report.Reassigned,
		"succeeded", report.Succeeded, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// Overdue lists pending and validating validations whose window has already
// elapsed, without changing anything.
func (e Engine) Overdue(ctx context.Context) ([]domain.Validation, error) {
	now := e.now()
	var out []domain.Validation
	for status, window := range map[string]time.Duration{
		domain.ValidationPending:    e.Config.PendingWindow(),
		domain.ValidationValidating: e.Config.DisputeWindow(),
	} {
		rows, err := e.Repo.ListValidationsByStatus(ctx, status)
		if err != nil {
			return nil, storeErr("list validations", err)
		}
		for _, v := range rows {
			if remaining, err := remainingWindow(v, now, window); err == nil && remaining <= 0 {
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, nil
}

func remainingWindow(v domain.Validation, now time.Time, window time.Duration) (time.Duration, error) {
	entered, err := time.Parse(time.RFC3339, v.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("parse created_at %q: %w", v.CreatedAt, err)
	}
	return window - now.Sub(entered), nil
}
