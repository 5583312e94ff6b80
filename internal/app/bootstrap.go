package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Bluenode2024/POCBE/internal/config"
	"github.com/Bluenode2024/POCBE/internal/db"
	"github.com/Bluenode2024/POCBE/internal/engine"
	"github.com/Bluenode2024/POCBE/internal/migrate"
)

// Options select the workspace and override the database section of pocbe.yml.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	Logger    *slog.Logger
	// SkipRecovery leaves stored deadlines unarmed. CLI one-shots use it so a
	// short-lived process does not fire timers it cannot keep.
	SkipRecovery bool
}

// Runtime is an opened store plus the engine built on it.
type Runtime struct {
	Conn     *sql.DB
	Dialect  db.Dialect
	Config   *config.Config
	Engine   engine.Engine
	Recovery engine.RecoveryReport
}

// Close stops timers before closing the store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.Engine.Close()
	return r.Conn.Close()
}

// ResolveConfig loads pocbe.yml from the workspace, falling back to defaults,
// and applies driver/dsn overrides.
func ResolveConfig(opts Options) (*config.Config, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Driver) != "" {
		cfg.Database.Driver = opts.Driver
	}
	if strings.TrimSpace(opts.DSN) != "" {
		cfg.Database.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap opens the store, applies migrations, builds the engine and, unless
// disabled, re-arms every stored deadline before returning. Callers must not
// accept traffic before Bootstrap returns.
func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := ResolveConfig(opts)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, dialect, err := db.Open(db.Config{
		Workspace: opts.Workspace,
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, dialect, cfg)
	if opts.Logger != nil {
		e.Logger = opts.Logger.With("component", "validation-engine")
	}
	rt := &Runtime{Conn: conn, Dialect: dialect, Config: cfg, Engine: e}
	if opts.SkipRecovery {
		return rt, nil
	}
	report, err := e.Recover(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("recover timers: %w", err)
	}
	rt.Recovery = report
	return rt, nil
}
