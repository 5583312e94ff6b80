package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Bluenode2024/POCBE/internal/domain"
)

const disputeColumns = `id,user_id,validation_id,comment,status,admin_id,response_comment,resolved_by,resolved_at,created_at`

func scanDispute(row interface{ Scan(...any) error }) (domain.Dispute, error) {
	var d domain.Dispute
	var adminID, response, resolvedBy, resolvedAt sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &d.ValidationID, &d.Comment, &d.Status, &adminID, &response, &resolvedBy, &resolvedAt, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.AdminID = stringPtr(adminID)
	d.ResponseComment = response.String
	d.ResolvedBy = stringPtr(resolvedBy)
	d.ResolvedAt = stringPtr(resolvedAt)
	return d, nil
}

func (r Repo) InsertDispute(ctx context.Context, tx *sql.Tx, d domain.Dispute) error {
	_, err := r.exec(ctx, tx, `INSERT INTO disputes(id,user_id,validation_id,comment,status,admin_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.UserID, d.ValidationID, d.Comment, d.Status, nullableStringPtr(d.AdminID), d.CreatedAt)
	return err
}

func (r Repo) GetDispute(ctx context.Context, tx *sql.Tx, id string) (domain.Dispute, error) {
	return scanDispute(r.queryRow(ctx, tx, `SELECT `+disputeColumns+` FROM disputes WHERE id=?`, id))
}

type DisputeFilters struct {
	Status       string
	ValidationID string
	AdminID      string
	Limit        int
}

func (r Repo) ListDisputes(ctx context.Context, f DisputeFilters) ([]domain.Dispute, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ValidationID != "" {
		clauses = append(clauses, "validation_id=?")
		args = append(args, f.ValidationID)
	}
	if f.AdminID != "" {
		clauses = append(clauses, "admin_id=?")
		args = append(args, f.AdminID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + disputeColumns + ` FROM disputes ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ResolveDispute closes a pending dispute. It reports false if the dispute was
// already resolved.
func (r Repo) ResolveDispute(ctx context.Context, tx *sql.Tx, id, status, responseComment, resolvedBy, at string) (bool, error) {
	res, err := r.exec(ctx, tx, `UPDATE disputes SET status=?, response_comment=?, resolved_by=?, resolved_at=?
WHERE id=? AND status='pending'`,
		status, nullable(responseComment), resolvedBy, at, id)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}
