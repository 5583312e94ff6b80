package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

// ErrUnauthorized is matched by every ForbiddenError.
var ErrUnauthorized = errors.New("unauthorized")

// ForbiddenError indicates the caller lacks a required standing.
type ForbiddenError struct {
	Requirement string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s required", e.Requirement)
}

func (e ForbiddenError) Unwrap() error { return ErrUnauthorized }

// Service answers admin and approval questions from the store.
type Service struct {
	Repo repo.Repo
}

// IsAdmin reports whether userID has an admin row.
func (s Service) IsAdmin(ctx context.Context, tx *sql.Tx, userID string) (bool, error) {
	_, err := s.Repo.GetAdminByUserID(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// RequireAdmin returns the caller's admin record or a ForbiddenError.
func (s Service) RequireAdmin(ctx context.Context, tx *sql.Tx, userID string) (domain.Admin, error) {
	if userID == "" {
		return domain.Admin{}, ForbiddenError{Requirement: "admin"}
	}
	a, err := s.Repo.GetAdminByUserID(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Admin{}, ForbiddenError{Requirement: "admin"}
	}
	return a, err
}

// RequireApproved checks that userID exists and has been approved.
func (s Service) RequireApproved(ctx context.Context, tx *sql.Tx, userID string) (domain.User, error) {
	u, err := s.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.ApprovedAt == nil {
		return domain.User{}, ForbiddenError{Requirement: "approved user"}
	}
	return u, nil
}
