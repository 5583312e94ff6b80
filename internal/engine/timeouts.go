package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/events"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

func (e Engine) armPending(id string, delay time.Duration) {
	if e.Timers == nil {
		return
	}
	e.Timers.Arm(id, TimerPending, delay, func() {
		e.onTimer(TimerPending, id, e.FirePendingTimeout)
	})
}

func (e Engine) armValidating(id string, delay time.Duration) {
	if e.Timers == nil {
		return
	}
	e.Timers.Arm(id, TimerValidating, delay, func() {
		e.onTimer(TimerValidating, id, e.FireValidatingTimeout)
	})
}

// onTimer runs a timer-driven transition. Failures are logged and the timer is
// not re-armed; the next recovery run picks the validation up again.
func (e Engine) onTimer(kind TimerKind, id string, fire func(context.Context, string) (bool, error)) {
	applied, err := fire(context.Background(), id)
	if err != nil {
		e.log().Error("timer transition failed; not rescheduled until next recovery",
			"kind", kind, "validation_id", id, "err", err)
		return
	}
	if !applied {
		e.log().Debug("timer fired against moved validation", "kind", kind, "validation_id", id)
	}
}

// FirePendingTimeout reassigns a pending validation to a fresh validator,
// excluding project participants and the current validator, then re-arms the
// response window. It reports false without error when the validation is no
// longer pending or another writer changed it first.
func (e Engine) FirePendingTimeout(ctx context.Context, id string) (bool, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetValidation(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return false, notFound("validation", id)
	}
	if err != nil {
		return false, storeErr("get validation", err)
	}
	if v.Status != domain.ValidationPending {
		return false, nil
	}
	ineligible, err := e.Pool.ResolveIneligible(ctx, tx, v.TaskID)
	if err != nil {
		return false, err
	}
	ineligible.Add(v.ValidatorID)
	if current, err := e.Repo.GetValidator(ctx, tx, v.ValidatorID); err == nil {
		ineligible.Add(current.UserID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, storeErr("get validator", err)
	}
	next, err := e.Pool.SelectValidator(ctx, tx, ineligible)
	if err != nil {
		return false, err
	}
	ok, err := e.Repo.ReassignValidator(ctx, tx, v.ID, v.ValidatorID, next.ID, e.stamp())
	if err != nil {
		return false, storeErr("reassign validator", err)
	}
	if !ok {
		return false, nil
	}
	if err := e.Events.Append(ctx, tx, events.ValidationReassign, "validation", v.ID, events.SystemActor, events.EventPayload{
		"from_validator_id": v.ValidatorID,
		"to_validator_id":   next.ID,
	}); err != nil {
		return false, storeErr("append event", err)
	}
	if err := commit(tx); err != nil {
		return false, err
	}
	e.armPending(v.ID, e.Config.PendingWindow())
	e.log().Info("validator reassigned", "validation_id", v.ID, "from", v.ValidatorID, "to", next.ID)
	return true, nil
}

// FireValidatingTimeout closes an undisputed validation as success. A
// validation that left validating (for example through a dispute) is untouched.
func (e Engine) FireValidatingTimeout(ctx context.Context, id string) (bool, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.TransitionValidation(ctx, tx, id, []string{domain.ValidationValidating}, domain.ValidationSuccess)
	if err != nil {
		return false, storeErr("complete validation", err)
	}
	if !ok {
		return false, nil
	}
	if err := e.Events.Append(ctx, tx, events.ValidationSucceeded, "validation", id, events.SystemActor, nil); err != nil {
		return false, storeErr("append event", err)
	}
	if err := commit(tx); err != nil {
		return false, err
	}
	e.log().Info("validation succeeded", "validation_id", id)
	return true, nil
}
