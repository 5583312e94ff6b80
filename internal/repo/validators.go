package repo

import (
	"context"
	"database/sql"

	"github.com/Bluenode2024/POCBE/internal/domain"
)

func scanValidator(row interface{ Scan(...any) error }) (domain.Validator, error) {
	var v domain.Validator
	err := row.Scan(&v.ID, &v.UserID, &v.StakeRef, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

// InsertValidator registers a validator. A second registration for the same user
// fails with ErrConflict.
func (r Repo) InsertValidator(ctx context.Context, tx *sql.Tx, v domain.Validator) error {
	_, err := r.exec(ctx, tx, `INSERT INTO validators(id,user_id,stake_ref,created_at) VALUES (?,?,?,?)`,
		v.ID, v.UserID, v.StakeRef, v.CreatedAt)
	return err
}

func (r Repo) GetValidator(ctx context.Context, tx *sql.Tx, id string) (domain.Validator, error) {
	return scanValidator(r.queryRow(ctx, tx, `SELECT id,user_id,stake_ref,created_at FROM validators WHERE id=?`, id))
}

func (r Repo) GetValidatorByUserID(ctx context.Context, tx *sql.Tx, userID string) (domain.Validator, error) {
	return scanValidator(r.queryRow(ctx, tx, `SELECT id,user_id,stake_ref,created_at FROM validators WHERE user_id=?`, userID))
}

// ListValidators returns every registered validator ordered by id.
func (r Repo) ListValidators(ctx context.Context, tx *sql.Tx) ([]domain.Validator, error) {
	rows, err := r.query(ctx, tx, `SELECT id,user_id,stake_ref,created_at FROM validators ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Validator
	for rows.Next() {
		v, err := scanValidator(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
