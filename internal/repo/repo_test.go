package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluenode2024/POCBE/internal/db"
	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/migrate"
)

const ts = "2024-01-01T00:00:00Z"

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	return Repo{DB: conn, Dialect: dialect}
}

func seedTask(t *testing.T, r Repo) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []string{"leader", "member", "val-user"} {
		require.NoError(t, r.InsertUser(ctx, nil, domain.User{ID: u, WalletAddress: "0x" + u, CreatedAt: ts}))
	}
	require.NoError(t, r.InsertProject(ctx, nil, domain.Project{ID: "p1", Name: "proj", LeaderID: "leader", CreatedAt: ts}))
	require.NoError(t, r.AddProjectMember(ctx, nil, domain.ProjectMember{ProjectID: "p1", UserID: "member", CreatedAt: ts}))
	require.NoError(t, r.InsertTask(ctx, nil, domain.Task{ID: "t1", ProjectID: "p1", UserID: "member", Title: "work", CreatedAt: ts}))
	require.NoError(t, r.InsertValidator(ctx, nil, domain.Validator{ID: "v1", UserID: "val-user", StakeRef: "0xval-user", CreatedAt: ts}))
}

func TestDuplicateValidatorIsConflict(t *testing.T) {
	r := newTestRepo(t)
	seedTask(t, r)
	err := r.InsertValidator(context.Background(), nil, domain.Validator{ID: "v2", UserID: "val-user", CreatedAt: ts})
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestGetMissingRowsReturnNotFound(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.GetValidation(ctx, nil, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetDispute(ctx, nil, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetUserByWallet(ctx, nil, "0xnope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenValidationUniquePerTask(t *testing.T) {
	r := newTestRepo(t)
	seedTask(t, r)
	ctx := context.Background()
	require.NoError(t, r.InsertValidation(ctx, nil, domain.Validation{ID: "a", ValidatorID: "v1", TaskID: "t1", Status: domain.ValidationPending, CreatedAt: ts}))
	err := r.InsertValidation(ctx, nil, domain.Validation{ID: "b", ValidatorID: "v1", TaskID: "t1", Status: domain.ValidationPending, CreatedAt: ts})
	assert.ErrorIs(t, err, ErrConflict)

	open, err := r.HasOpenValidation(ctx, nil, "t1")
	require.NoError(t, err)
	assert.True(t, open)

	ok, err := r.TransitionValidation(ctx, nil, "a", []string{domain.ValidationPending}, domain.ValidationSuccess)
	require.NoError(t, err)
	require.True(t, ok)

	open, err = r.HasOpenValidation(ctx, nil, "t1")
	require.NoError(t, err)
	assert.False(t, open)
	require.NoError(t, r.InsertValidation(ctx, nil, domain.Validation{ID: "b", ValidatorID: "v1", TaskID: "t1", Status: domain.ValidationPending, CreatedAt: ts}))
}

func TestCompareAndSwapGuards(t *testing.T) {
	r := newTestRepo(t)
	seedTask(t, r)
	ctx := context.Background()
	require.NoError(t, r.InsertValidation(ctx, nil, domain.Validation{ID: "a", ValidatorID: "v1", TaskID: "t1", Status: domain.ValidationPending, CreatedAt: ts}))

	ok, err := r.ConfirmValidation(ctx, nil, "a", "someone-else", "", "", ts)
	require.NoError(t, err)
	assert.False(t, ok, "wrong validator must lose")

	ok, err = r.ConfirmValidation(ctx, nil, "a", "v1", "looks good", "0xreward", "2024-01-01T01:00:00Z")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ReassignValidator(ctx, nil, "a", "v1", "v2", ts)
	require.NoError(t, err)
	assert.False(t, ok, "reassign only applies to pending rows")

	ok, err = r.TransitionValidation(ctx, nil, "a", []string{domain.ValidationPending}, domain.ValidationSuccess)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := r.GetValidation(ctx, nil, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationValidating, v.Status)
	assert.Equal(t, "looks good", v.Comment)
	assert.Equal(t, "0xreward", v.RewardRef)
	assert.Equal(t, "2024-01-01T01:00:00Z", v.CreatedAt)
}

func TestResolveDisputeOnce(t *testing.T) {
	r := newTestRepo(t)
	seedTask(t, r)
	ctx := context.Background()
	require.NoError(t, r.InsertValidation(ctx, nil, domain.Validation{ID: "a", ValidatorID: "v1", TaskID: "t1", Status: domain.ValidationReported, CreatedAt: ts}))
	require.NoError(t, r.InsertDispute(ctx, nil, domain.Dispute{ID: "d1", UserID: "member", ValidationID: "a", Comment: "wrong", Status: domain.DisputePending, CreatedAt: ts}))

	open, err := r.HasOpenValidation(ctx, nil, "t1")
	require.NoError(t, err)
	assert.True(t, open, "reported with a pending dispute still blocks")

	ok, err := r.ResolveDispute(ctx, nil, "d1", domain.DisputeRejected, "fine", "leader", ts)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.ResolveDispute(ctx, nil, "d1", domain.DisputeApproved, "", "leader", ts)
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := r.GetDispute(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeRejected, d.Status)
	require.NotNil(t, d.ResolvedBy)
	assert.Equal(t, "leader", *d.ResolvedBy)
	assert.Nil(t, d.AdminID)
}

func TestAPIKeyRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	seedTask(t, r)
	ctx := context.Background()
	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", UserID: "member", KeyHash: HashAPIKey(" secret ")}))
	k, err := r.GetAPIKeyByHash(ctx, HashAPIKey("secret"))
	require.NoError(t, err)
	assert.Equal(t, "member", k.UserID)
	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), ErrNotFound)
}
