package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

// The rows below belong to the surrounding contribution tracker. The engine
// only reads them; these helpers exist so operators and tests can seed them.

type CreateUserOptions struct {
	ID            string
	Name          string
	WalletAddress string
	Approved      bool
}

func (e Engine) CreateUser(ctx context.Context, opts CreateUserOptions) (domain.User, error) {
	wallet := strings.TrimSpace(opts.WalletAddress)
	if wallet == "" {
		return domain.User{}, errors.New("wallet address is required")
	}
	u := domain.User{
		ID:            opts.ID,
		Name:          opts.Name,
		WalletAddress: wallet,
		CreatedAt:     e.stamp(),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if opts.Approved {
		at := u.CreatedAt
		u.ApprovedAt = &at
	}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, storeErr("insert user", err)
	}
	return u, nil
}

func (e Engine) ApproveUser(ctx context.Context, userID string) (domain.User, error) {
	if err := e.Repo.ApproveUser(ctx, nil, userID, e.stamp()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, notFound("user", userID)
		}
		return domain.User{}, storeErr("approve user", err)
	}
	u, err := e.Repo.GetUser(ctx, nil, userID)
	return u, storeErr("get user", err)
}

func (e Engine) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, nil, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return u, notFound("user", userID)
	}
	return u, storeErr("get user", err)
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	us, err := e.Repo.ListUsers(ctx)
	return us, storeErr("list users", err)
}

// GrantAdmin gives an existing user admin standing.
func (e Engine) GrantAdmin(ctx context.Context, userID string) (domain.Admin, error) {
	if _, err := e.GetUser(ctx, userID); err != nil {
		return domain.Admin{}, err
	}
	a := domain.Admin{ID: uuid.NewString(), UserID: userID, CreatedAt: e.stamp()}
	if err := e.Repo.InsertAdmin(ctx, nil, a); err != nil {
		return domain.Admin{}, storeErr("insert admin", err)
	}
	return a, nil
}

// IsAdmin reports whether userID is an admin.
func (e Engine) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ok, err := e.Auth.IsAdmin(ctx, nil, userID)
	return ok, storeErr("check admin", err)
}

type CreateProjectOptions struct {
	ID       string
	Name     string
	LeaderID string
}

func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, errors.New("project name is required")
	}
	if _, err := e.GetUser(ctx, opts.LeaderID); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{ID: opts.ID, Name: opts.Name, LeaderID: opts.LeaderID, CreatedAt: e.stamp()}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := e.Repo.InsertProject(ctx, nil, p); err != nil {
		return domain.Project{}, storeErr("insert project", err)
	}
	return p, nil
}

func (e Engine) AddProjectMember(ctx context.Context, projectID, userID string) error {
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("project", projectID)
		}
		return storeErr("get project", err)
	}
	if _, err := e.GetUser(ctx, userID); err != nil {
		return err
	}
	return storeErr("add project member", e.Repo.AddProjectMember(ctx, nil, domain.ProjectMember{
		ProjectID: projectID, UserID: userID, CreatedAt: e.stamp(),
	}))
}

type CreateTaskOptions struct {
	ID        string
	ProjectID string
	UserID    string
	Title     string
}

func (e Engine) CreateTask(ctx context.Context, opts CreateTaskOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if _, err := e.Repo.GetProject(ctx, nil, opts.ProjectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, notFound("project", opts.ProjectID)
		}
		return domain.Task{}, storeErr("get project", err)
	}
	t := domain.Task{ID: opts.ID, ProjectID: opts.ProjectID, UserID: opts.UserID, Title: opts.Title, CreatedAt: e.stamp()}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := e.Repo.InsertTask(ctx, nil, t); err != nil {
		return domain.Task{}, storeErr("insert task", err)
	}
	return t, nil
}

type CreateAPIKeyOptions struct {
	UserID string
	Name   string
}

// CreateAPIKey stores a new key for a user and returns the plaintext once.
func (e Engine) CreateAPIKey(ctx context.Context, opts CreateAPIKeyOptions) (domain.APIKey, string, error) {
	if _, err := e.GetUser(ctx, opts.UserID); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "pk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    opts.UserID,
		Name:      opts.Name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", storeErr("insert api key", err)
	}
	return key, plain, nil
}
