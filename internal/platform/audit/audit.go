// Package audit records administrative changes as audit events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/emradmin/internal/platform/auth"
	"github.com/ehr/emradmin/internal/platform/db"
)

// Action follows the FHIR AuditEvent action codes.
type Action string

const (
	ActionCreate Action = "C"
	ActionUpdate Action = "U"
	ActionDelete Action = "D"
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return string(a)
}

// Recorder persists one audit event per call.
type Recorder interface {
	RecordEvent(ctx context.Context, action Action, subject, description string, details map[string]string) error
}

// Event is a stored audit event.
type Event struct {
	ID          uuid.UUID         `json:"id"`
	Action      Action            `json:"action"`
	Subject     string            `json:"subject"`
	Description string            `json:"description"`
	AgentWho    string            `json:"agent_who,omitempty"`
	Details     map[string]string `json:"details"`
	Recorded    time.Time         `json:"recorded"`
}

// PGRecorder writes events to the audit_event table, joining the tenant
// connection carried by ctx.
type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) RecordEvent(ctx context.Context, action Action, subject, description string, details map[string]string) error {
	if details == nil {
		details = map[string]string{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_event (id, action, subject, description, agent_who, details, recorded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), string(action), subject, description,
		auth.UserIDFromContext(ctx), payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns the newest events for subject.
func (r *PGRecorder) ListBySubject(ctx context.Context, subject string, limit int) ([]*Event, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, action, subject, description, COALESCE(agent_who, ''), details, recorded
		FROM audit_event WHERE subject = $1 ORDER BY recorded DESC LIMIT $2`, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var action string
		var payload []byte
		if err := rows.Scan(&ev.ID, &action, &ev.Subject, &ev.Description, &ev.AgentWho, &payload, &ev.Recorded); err != nil {
			return nil, err
		}
		ev.Action = Action(action)
		if err := json.Unmarshal(payload, &ev.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// LogRecorder emits audit events as structured log lines. It is used when
// no database is configured and as the fallback in Multi.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.With().Str("component", "audit").Logger()}
}

func (r *LogRecorder) RecordEvent(ctx context.Context, action Action, subject, description string, details map[string]string) error {
	evt := r.logger.Info().
		Str("action", action.String()).
		Str("subject", subject).
		Str("agent", auth.UserIDFromContext(ctx))
	for k, v := range details {
		evt = evt.Str("detail_"+k, v)
	}
	evt.Msg(description)
	return nil
}

// Multi records to every recorder and returns the first error.
type Multi []Recorder

func (m Multi) RecordEvent(ctx context.Context, action Action, subject, description string, details map[string]string) error {
	var first error
	for _, r := range m {
		if err := r.RecordEvent(ctx, action, subject, description, details); err != nil && first == nil {
			first = err
		}
	}
	return first
}
