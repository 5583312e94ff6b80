package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Bluenode2024/POCBE/internal/domain"
)

const validationColumns = `id,validator_id,task_id,status,comment,reward_ref,created_at`

func scanValidation(row interface{ Scan(...any) error }) (domain.Validation, error) {
	var v domain.Validation
	var comment, reward sql.NullString
	err := row.Scan(&v.ID, &v.ValidatorID, &v.TaskID, &v.Status, &comment, &reward, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	v.Comment = comment.String
	v.RewardRef = reward.String
	return v, nil
}

// InsertValidation stores a new validation. The partial unique index on open
// validations turns a concurrent duplicate into ErrConflict.
func (r Repo) InsertValidation(ctx context.Context, tx *sql.Tx, v domain.Validation) error {
	_, err := r.exec(ctx, tx, `INSERT INTO validations(id,validator_id,task_id,status,comment,reward_ref,created_at) VALUES (?,?,?,?,?,?,?)`,
		v.ID, v.ValidatorID, v.TaskID, v.Status, nullable(v.Comment), nullable(v.RewardRef), v.CreatedAt)
	return err
}

func (r Repo) GetValidation(ctx context.Context, tx *sql.Tx, id string) (domain.Validation, error) {
	return scanValidation(r.queryRow(ctx, tx, `SELECT `+validationColumns+` FROM validations WHERE id=?`, id))
}

type ValidationFilters struct {
	Status      string
	TaskID      string
	ValidatorID string
	Limit       int
}

func (r Repo) ListValidations(ctx context.Context, f ValidationFilters) ([]domain.Validation, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.ValidatorID != "" {
		clauses = append(clauses, "validator_id=?")
		args = append(args, f.ValidatorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + validationColumns + ` FROM validations ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Validation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// ListValidationsByStatus returns all rows in one status, oldest first.
func (r Repo) ListValidationsByStatus(ctx context.Context, status string) ([]domain.Validation, error) {
	rows, err := r.query(ctx, nil, `SELECT `+validationColumns+` FROM validations WHERE status=? ORDER BY created_at ASC, id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Validation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// HasOpenValidation reports whether the task already has a pending or
// validating validation, or a reported one whose dispute is still pending.
func (r Repo) HasOpenValidation(ctx context.Context, tx *sql.Tx, taskID string) (bool, error) {
	var n int
	err := r.queryRow(ctx, tx, `SELECT 1 FROM validations v WHERE v.task_id=? AND (
	v.status IN ('pending','validating')
	OR (v.status='reported' AND EXISTS (SELECT 1 FROM disputes d WHERE d.validation_id=v.id AND d.status='pending'))
) LIMIT 1`, taskID).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ConfirmValidation moves a pending validation to validating if it is still
// assigned to validatorID. It reports false when another writer got there first.
func (r Repo) ConfirmValidation(ctx context.Context, tx *sql.Tx, id, validatorID, comment, rewardRef, at string) (bool, error) {
	res, err := r.exec(ctx, tx, `UPDATE validations SET status='validating', comment=?, reward_ref=?, created_at=?
WHERE id=? AND status='pending' AND validator_id=?`,
		nullable(comment), nullable(rewardRef), at, id, validatorID)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// ReassignValidator swaps the validator of a pending validation and restarts its clock.
func (r Repo) ReassignValidator(ctx context.Context, tx *sql.Tx, id, fromValidatorID, toValidatorID, at string) (bool, error) {
	res, err := r.exec(ctx, tx, `UPDATE validations SET validator_id=?, created_at=?
WHERE id=? AND status='pending' AND validator_id=?`,
		toValidatorID, at, id, fromValidatorID)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// TransitionValidation sets status to `to` only if the current status is one of `from`.
func (r Repo) TransitionValidation(ctx context.Context, tx *sql.Tx, id string, from []string, to string) (bool, error) {
	args := append([]any{to, id}, stringArgs(from)...)
	res, err := r.exec(ctx, tx, `UPDATE validations SET status=? WHERE id=? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}
