package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bluenode2024/POCBE/internal/db"
)

// Lifecycle event types.
const (
	ValidatorRegistered = "validator.registered"
	ValidationCreated   = "validation.created"
	ValidationConfirmed = "validation.confirmed"
	ValidationReassign  = "validation.reassigned"
	ValidationSucceeded = "validation.succeeded"
	ValidationDisputed  = "validation.disputed"
	DisputeFiled        = "dispute.filed"
	DisputeApproved     = "dispute.approved"
	DisputeRejected     = "dispute.rejected"
)

// SystemActor is recorded for transitions driven by timers and recovery.
const SystemActor = "system"

type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append writes an event inside tx so it commits or rolls back with the transition it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = SystemActor
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
