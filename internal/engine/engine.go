package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bluenode2024/POCBE/internal/config"
	"github.com/Bluenode2024/POCBE/internal/db"
	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/engine/auth"
	"github.com/Bluenode2024/POCBE/internal/events"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

// Engine runs the validation lifecycle. It is a value type; the timer table is
// shared through the Timers pointer.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Pool   Pool
	Timers *Scheduler
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	return Engine{
		DB:     conn,
		Repo:   r,
		Events: events.Writer{DB: conn, Dialect: dialect},
		Auth:   auth.Service{Repo: r},
		Pool:   Pool{Repo: r},
		Timers: NewScheduler(),
		Config: cfg,
		Logger: slog.Default().With("component", "validation-engine"),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	return tx, nil
}

func commit(tx *sql.Tx) error {
	return storeErr("commit", tx.Commit())
}

// Close stops all armed timers and waits for running transitions.
func (e Engine) Close() {
	if e.Timers != nil {
		e.Timers.Stop()
	}
}

type RegisterValidatorOptions struct {
	// Identity is a wallet address or a user id.
	Identity string
	StakeRef string
	ActorID  string
}

// RegisterValidator makes an existing user a validator. Each user may register once.
func (e Engine) RegisterValidator(ctx context.Context, opts RegisterValidatorOptions) (domain.Validator, error) {
	identity := strings.TrimSpace(opts.Identity)
	if identity == "" {
		return domain.Validator{}, errors.New("identity is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Validator{}, err
	}
	defer tx.Rollback()

	user, err := e.Repo.GetUserByWallet(ctx, tx, identity)
	if errors.Is(err, repo.ErrNotFound) {
		user, err = e.Repo.GetUser(ctx, tx, identity)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Validator{}, notFound("user", identity)
	}
	if err != nil {
		return domain.Validator{}, storeErr("get user", err)
	}
	if _, err := e.Repo.GetValidatorByUserID(ctx, tx, user.ID); err == nil {
		return domain.Validator{}, conflict("user %s is already a validator", user.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Validator{}, storeErr("get validator", err)
	}
	stake := opts.StakeRef
	if stake == "" {
		stake = user.WalletAddress
	}
	v := domain.Validator{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		StakeRef:  stake,
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertValidator(ctx, tx, v); err != nil {
		return domain.Validator{}, storeErr("insert validator", err)
	}
	if err := e.Events.Append(ctx, tx, events.ValidatorRegistered, "validator", v.ID, actorOr(opts.ActorID, user.ID), events.EventPayload{"user_id": user.ID}); err != nil {
		return domain.Validator{}, storeErr("append event", err)
	}
	if err := commit(tx); err != nil {
		return domain.Validator{}, err
	}
	return v, nil
}

func (e Engine) ListValidators(ctx context.Context) ([]domain.Validator, error) {
	vs, err := e.Repo.ListValidators(ctx, nil)
	return vs, storeErr("list validators", err)
}

// CreateValidation assigns a validator to a task and arms the response window.
func (e Engine) CreateValidation(ctx context.Context, taskID, actorID string) (domain.Validation, error) {
	if strings.TrimSpace(taskID) == "" {
		return domain.Validation{}, errors.New("task id is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Validation{}, err
	}
	defer tx.Rollback()

	ineligible, err := e.Pool.ResolveIneligible(ctx, tx, taskID)
	if err != nil {
		return domain.Validation{}, err
	}
	open, err := e.Repo.HasOpenValidation(ctx, tx, taskID)
	if err != nil {
		return domain.Validation{}, storeErr("check open validation", err)
	}
	if open {
		return domain.Validation{}, conflict("task %s already has an open validation", taskID)
	}
	validator, err := e.Pool.SelectValidator(ctx, tx, ineligible)
	if err != nil {
		return domain.Validation{}, err
	}
	v := domain.Validation{
		ID:          uuid.NewString(),
		ValidatorID: validator.ID,
		TaskID:      taskID,
		Status:      domain.ValidationPending,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertValidation(ctx, tx, v); err != nil {
		return domain.Validation{}, storeErr("insert validation", err)
	}
	if err := e.Events.Append(ctx, tx, events.ValidationCreated, "validation", v.ID, actorID, events.EventPayload{
		"task_id":      taskID,
		"validator_id": validator.ID,
	}); err != nil {
		return domain.Validation{}, storeErr("append event", err)
	}
	if err := commit(tx); err != nil {
		return domain.Validation{}, err
	}
	e.armPending(v.ID, e.Config.PendingWindow())
	e.log().Info("validation created", "validation_id", v.ID, "task_id", taskID, "validator_id", validator.ID)
	return v, nil
}

type ConfirmOptions struct {
	ValidationID string
	UserID       string
	Comment      string
	RewardRef    string
}

// ConfirmValidation lets the assigned validator accept the work, which opens the dispute window.
func (e Engine) ConfirmValidation(ctx context.Context, opts ConfirmOptions) (domain.Validation, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Validation{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetValidation(ctx, tx, opts.ValidationID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Validation{}, notFound("validation", opts.ValidationID)
	}
	if err != nil {
		return domain.Validation{}, storeErr("get validation", err)
	}
	validator, err := e.Repo.GetValidator(ctx, tx, v.ValidatorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Validation{}, notFound("validator", v.ValidatorID)
	}
	if err != nil {
		return domain.Validation{}, storeErr("get validator", err)
	}
	if opts.UserID == "" || validator.UserID != opts.UserID {
		return domain.Validation{}, fmt.Errorf("%w: only the assigned validator may confirm", ErrUnauthorized)
	}
	if v.Status != domain.ValidationPending {
		return domain.Validation{}, conflict("validation %s is %s", v.ID, v.Status)
	}
	at := e.stamp()
	ok, err := e.Repo.ConfirmValidation(ctx, tx, v.ID, validator.ID, opts.Comment, opts.RewardRef, at)
	if err != nil {
		return domain.Validation{}, storeErr("confirm validation", err)
	}
	if !ok {
		return domain.Validation{}, e.lostConfirm(ctx, tx, v.ID, validator.ID)
	}
	if err := e.Events.Append(ctx, tx, events.ValidationConfirmed, "validation", v.ID, opts.UserID, events.EventPayload{
		"validator_id": validator.ID,
		"reward_ref":   opts.RewardRef,
	}); err != nil {
		return domain.Validation{}, storeErr("append event", err)
	}
	if err := commit(tx); err != nil {
		return domain.Validation{}, err
	}
	e.Timers.Cancel(v.ID)
	e.armValidating(v.ID, e.Config.DisputeWindow())

	v.Status = domain.ValidationValidating
	v.Comment = opts.Comment
	v.RewardRef = opts.RewardRef
	v.CreatedAt = at
	return v, nil
}

// lostConfirm explains why the confirm CAS matched no row.
func (e Engine) lostConfirm(ctx context.Context, tx *sql.Tx, id, validatorID string) error {
	cur, err := e.Repo.GetValidation(ctx, tx, id)
	if err != nil {
		return storeErr("get validation", err)
	}
	if cur.ValidatorID != validatorID {
		return fmt.Errorf("%w: validation %s was reassigned", ErrUnauthorized, id)
	}
	return conflict("validation %s is %s", id, cur.Status)
}

func (e Engine) GetValidation(ctx context.Context, id string) (domain.Validation, error) {
	v, err := e.Repo.GetValidation(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return v, notFound("validation", id)
	}
	return v, storeErr("get validation", err)
}

func (e Engine) ListValidations(ctx context.Context, f repo.ValidationFilters) ([]domain.Validation, error) {
	vs, err := e.Repo.ListValidations(ctx, f)
	return vs, storeErr("list validations", err)
}

// ListDisputed returns validations in reported status, newest first.
func (e Engine) ListDisputed(ctx context.Context) ([]domain.Validation, error) {
	return e.ListValidations(ctx, repo.ValidationFilters{Status: domain.ValidationReported})
}

// ArmedTimers lists the deadlines currently held in memory.
func (e Engine) ArmedTimers() []ArmedTimer {
	if e.Timers == nil {
		return nil
	}
	return e.Timers.Snapshot()
}

func actorOr(actorID, fallback string) string {
	if actorID != "" {
		return actorID
	}
	return fallback
}
