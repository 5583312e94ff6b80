package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/events"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

type FileDisputeOptions struct {
	ValidationID string
	UserID       string
	Comment      string
	// AdminID optionally routes the dispute to one admin.
	AdminID string
}

// FileDispute reports a pending or validating validation. The armed timer is
// left in place; its status check turns the late firing into a no-op.
func (e Engine) FileDispute(ctx context.Context, opts FileDisputeOptions) (domain.Dispute, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()

	if _, err := e.Auth.RequireApproved(ctx, tx, opts.UserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Dispute{}, notFound("user", opts.UserID)
		}
		return domain.Dispute{}, storeErr("check user", err)
	}
	v, err := e.Repo.GetValidation(ctx, tx, opts.ValidationID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Dispute{}, notFound("validation", opts.ValidationID)
	}
	if err != nil {
		return domain.Dispute{}, storeErr("get validation", err)
	}
	var adminID *string
	if id := strings.TrimSpace(opts.AdminID); id != "" {
		if _, err := e.Repo.GetAdmin(ctx, tx, id); errors.Is(err, repo.ErrNotFound) {
			return domain.Dispute{}, notFound("admin", id)
		} else if err != nil {
			return domain.Dispute{}, storeErr("get admin", err)
		}
		adminID = &id
	}
	ok, err := e.Repo.TransitionValidation(ctx, tx, v.ID,
		[]string{domain.ValidationPending, domain.ValidationValidating}, domain.ValidationReported)
	if err != nil {
		return domain.Dispute{}, storeErr("report validation", err)
	}
	if !ok {
		cur, err := e.Repo.GetValidation(ctx, tx, v.ID)
		if err != nil {
			return domain.Dispute{}, storeErr("get validation", err)
		}
		return domain.Dispute{}, conflict("validation %s is %s and cannot be disputed", v.ID, cur.Status)
	}
	d := domain.Dispute{
		ID:           uuid.NewString(),
		UserID:       opts.UserID,
		ValidationID: v.ID,
		Comment:      opts.Comment,
		Status:       domain.DisputePending,
		AdminID:      adminID,
		CreatedAt:    e.stamp(),
	}
	if err := e.Repo.InsertDispute(ctx, tx, d); err != nil {
		return domain.Dispute{}, storeErr("insert dispute", err)
	}
	if err := e.Events.Append(ctx, tx, events.DisputeFiled, "dispute", d.ID, opts.UserID, events.EventPayload{"validation_id": v.ID}); err != nil {
		return domain.Dispute{}, storeErr("append event", err)
	}
	if err := e.Events.Append(ctx, tx, events.ValidationDisputed, "validation", v.ID, opts.UserID, events.EventPayload{
		"dispute_id":  d.ID,
		"from_status": v.Status,
	}); err != nil {
		return domain.Dispute{}, storeErr("append event", err)
	}
	if err := commit(tx); err != nil {
		return domain.Dispute{}, err
	}
	e.log().Info("dispute filed", "dispute_id", d.ID, "validation_id", v.ID)
	return d, nil
}

type ResolveDisputeOptions struct {
	DisputeID string
	UserID    string
	Approve   bool
	Comment   string
}

// ResolveDispute lets an admin close a dispute. Rejecting it returns the
// validation to success; approving it leaves the validation reported for good.
func (e Engine) ResolveDispute(ctx context.Context, opts ResolveDisputeOptions) (domain.Dispute, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()

	admin, err := e.Auth.RequireAdmin(ctx, tx, opts.UserID)
	if err != nil {
		return domain.Dispute{}, storeErr("check admin", err)
	}
	d, err := e.Repo.GetDispute(ctx, tx, opts.DisputeID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Dispute{}, notFound("dispute", opts.DisputeID)
	}
	if err != nil {
		return domain.Dispute{}, storeErr("get dispute", err)
	}
	if d.AdminID != nil && *d.AdminID != admin.ID {
		return domain.Dispute{}, fmt.Errorf("%w: dispute is assigned to another admin", ErrUnauthorized)
	}
	status, evtType := domain.DisputeRejected, events.DisputeRejected
	if opts.Approve {
		status, evtType = domain.DisputeApproved, events.DisputeApproved
	}
	at := e.stamp()
	ok, err := e.Repo.ResolveDispute(ctx, tx, d.ID, status, opts.Comment, opts.UserID, at)
	if err != nil {
		return domain.Dispute{}, storeErr("resolve dispute", err)
	}
	if !ok {
		return domain.Dispute{}, conflict("dispute %s is already %s", d.ID, d.Status)
	}
	if !opts.Approve {
		ok, err := e.Repo.TransitionValidation(ctx, tx, d.ValidationID, []string{domain.ValidationReported}, domain.ValidationSuccess)
		if err != nil {
			return domain.Dispute{}, storeErr("restore validation", err)
		}
		if !ok {
			return domain.Dispute{}, conflict("validation %s is no longer reported", d.ValidationID)
		}
	}
	if err := e.Events.Append(ctx, tx, evtType, "dispute", d.ID, opts.UserID, events.EventPayload{
		"validation_id": d.ValidationID,
		"comment":       opts.Comment,
	}); err != nil {
		return domain.Dispute{}, storeErr("append event", err)
	}
	if !opts.Approve {
		if err := e.Events.Append(ctx, tx, events.ValidationSucceeded, "validation", d.ValidationID, opts.UserID, events.EventPayload{"dispute_id": d.ID}); err != nil {
			return domain.Dispute{}, storeErr("append event", err)
		}
	}
	if err := commit(tx); err != nil {
		return domain.Dispute{}, err
	}
	d.Status = status
	d.ResponseComment = opts.Comment
	d.ResolvedBy = &opts.UserID
	d.ResolvedAt = &at
	e.log().Info("dispute resolved", "dispute_id", d.ID, "status", status)
	return d, nil
}

func (e Engine) GetDispute(ctx context.Context, id string) (domain.Dispute, error) {
	d, err := e.Repo.GetDispute(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return d, notFound("dispute", id)
	}
	return d, storeErr("get dispute", err)
}

func (e Engine) ListDisputes(ctx context.Context, f repo.DisputeFilters) ([]domain.Dispute, error) {
	ds, err := e.Repo.ListDisputes(ctx, f)
	return ds, storeErr("list disputes", err)
}
