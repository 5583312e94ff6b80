package repo

import (
	"context"
	"database/sql"

	"github.com/Bluenode2024/POCBE/internal/domain"
)

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.exec(ctx, tx, `INSERT INTO projects(id,name,leader_id,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, p.LeaderID, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	var p domain.Project
	err := r.queryRow(ctx, tx, `SELECT id,name,leader_id,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.LeaderID, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.query(ctx, nil, `SELECT id,name,leader_id,created_at FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.LeaderID, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) AddProjectMember(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := r.exec(ctx, tx, `INSERT INTO project_members(project_id,user_id,created_at) VALUES (?,?,?) ON CONFLICT DO NOTHING`,
		m.ProjectID, m.UserID, m.CreatedAt)
	return err
}

// ListProjectMemberIDs returns the user ids recorded as members of a project.
func (r Repo) ListProjectMemberIDs(ctx context.Context, tx *sql.Tx, projectID string) ([]string, error) {
	rows, err := r.query(ctx, tx, `SELECT user_id FROM project_members WHERE project_id=? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.exec(ctx, tx, `INSERT INTO tasks(id,project_id,user_id,title,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.ProjectID, t.UserID, t.Title, t.CreatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	var t domain.Task
	err := r.queryRow(ctx, tx, `SELECT id,project_id,user_id,title,created_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.ProjectID, &t.UserID, &t.Title, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}
