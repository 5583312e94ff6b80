package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Bluenode2024/POCBE/internal/domain"
)

const userColumns = `id,name,wallet_address,approved_at,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	var approvedAt sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.WalletAddress, &approvedAt, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.ApprovedAt = stringPtr(approvedAt)
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.ID == "" || u.WalletAddress == "" {
		return errors.New("id and wallet_address required")
	}
	_, err := r.exec(ctx, tx, `INSERT INTO users(id,name,wallet_address,approved_at,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, u.WalletAddress, nullableStringPtr(u.ApprovedAt), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.queryRow(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByWallet(ctx context.Context, tx *sql.Tx, wallet string) (domain.User, error) {
	return scanUser(r.queryRow(ctx, tx, `SELECT `+userColumns+` FROM users WHERE wallet_address=?`, strings.TrimSpace(wallet)))
}

// ApproveUser marks a user approved. Already-approved users keep their original timestamp.
func (r Repo) ApproveUser(ctx context.Context, tx *sql.Tx, id, at string) error {
	res, err := r.exec(ctx, tx, `UPDATE users SET approved_at=COALESCE(approved_at, ?) WHERE id=?`, at, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.query(ctx, nil, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertAdmin(ctx context.Context, tx *sql.Tx, a domain.Admin) error {
	_, err := r.exec(ctx, tx, `INSERT INTO admins(id,user_id,created_at) VALUES (?,?,?)`, a.ID, a.UserID, a.CreatedAt)
	return err
}

func (r Repo) GetAdmin(ctx context.Context, tx *sql.Tx, id string) (domain.Admin, error) {
	var a domain.Admin
	err := r.queryRow(ctx, tx, `SELECT id,user_id,created_at FROM admins WHERE id=?`, id).Scan(&a.ID, &a.UserID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetAdminByUserID(ctx context.Context, tx *sql.Tx, userID string) (domain.Admin, error) {
	var a domain.Admin
	err := r.queryRow(ctx, tx, `SELECT id,user_id,created_at FROM admins WHERE user_id=?`, userID).Scan(&a.ID, &a.UserID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}
