package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluenode2024/POCBE/internal/config"
	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/engine"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveConfigOverrides(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("validation:\n  pending_window: 2h\n"), 0o644))

	cfg, err := ResolveConfig(Options{Workspace: ws, Driver: "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.PendingWindow())
	assert.Equal(t, config.DefaultWindow, cfg.DisputeWindow())
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	_, err = ResolveConfig(Options{Workspace: ws, Driver: "postgres"})
	require.Error(t, err)
}

func TestBootstrapRecoversStoredDeadlines(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	first, err := Bootstrap(ctx, Options{Workspace: ws, Logger: quietLogger()})
	require.NoError(t, err)
	e := first.Engine
	for _, id := range []string{"leader", "val"} {
		_, err := e.CreateUser(ctx, engine.CreateUserOptions{ID: id, WalletAddress: "0x" + id, Approved: true})
		require.NoError(t, err)
	}
	_, err = e.CreateProject(ctx, engine.CreateProjectOptions{ID: "p1", Name: "proj", LeaderID: "leader"})
	require.NoError(t, err)
	_, err = e.CreateTask(ctx, engine.CreateTaskOptions{ID: "t1", ProjectID: "p1", UserID: "leader", Title: "work"})
	require.NoError(t, err)
	_, err = e.RegisterValidator(ctx, engine.RegisterValidatorOptions{Identity: "val"})
	require.NoError(t, err)
	v, err := e.CreateValidation(ctx, "t1", "leader")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Bootstrap(ctx, Options{Workspace: ws, Logger: quietLogger()})
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, 1, second.Recovery.Rearmed)
	armed, ok := second.Engine.Timers.Lookup(v.ID)
	require.True(t, ok)
	assert.Equal(t, engine.TimerPending, armed.Kind)

	got, err := second.Engine.GetValidation(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationPending, got.Status)
}

func TestBootstrapSkipRecovery(t *testing.T) {
	rt, err := Bootstrap(context.Background(), Options{Workspace: t.TempDir(), SkipRecovery: true})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, 0, rt.Engine.Timers.Len())
}
