// Package jobs tracks long-running background work as durable, pollable
// command records, substituting for a dedicated task queue.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/notedeck/notedeck/pkg/types"
)

// CommandTable is the table holding job records.
const CommandTable = "command"

const commandTableDDL = `CREATE TABLE IF NOT EXISTS command (
	id TEXT PRIMARY KEY,
	app TEXT NOT NULL,
	command TEXT NOT NULL,
	status TEXT NOT NULL,
	input TEXT,
	result TEXT,
	error_message TEXT,
	progress INTEGER DEFAULT 0,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

// Tracker persists job lifecycle state through a Repository. It provisions
// its own table lazily, enforces legal status transitions, and serializes
// structured input/result values to JSON text columns.
type Tracker struct {
	repo   types.Repository
	logger *zap.Logger
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker returns a Tracker backed by repo.
func NewTracker(repo types.Repository, opts ...TrackerOption) *Tracker {
	t := &Tracker{repo: repo, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EnsureSchema idempotently provisions the command table.
func (t *Tracker) EnsureSchema(ctx context.Context) error {
	return t.repo.EnsureTable(ctx, CommandTable, commandTableDDL)
}

// Create inserts a queued job record and returns its id.
func (t *Tracker) Create(ctx context.Context, app, command string, input map[string]any) (string, error) {
	if err := t.EnsureSchema(ctx); err != nil {
		return "", fmt.Errorf("creating command record: %w", err)
	}

	rec := types.Record{
		"app":      app,
		"command":  command,
		"status":   string(types.JobQueued),
		"progress": 0,
	}
	if input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return "", fmt.Errorf("serializing command input: %w", err)
		}
		rec["input"] = string(b)
	}

	row, err := t.repo.Create(ctx, CommandTable, rec)
	if err != nil {
		return "", fmt.Errorf("creating command record: %w", err)
	}
	id := types.EnsureRecordID(row["id"])
	t.logger.Info("created command record",
		zap.String("id", id),
		zap.String("app", app),
		zap.String("command", command))
	return id, nil
}

// update carries the optional fields of an UpdateStatus call. Only supplied
// fields are written.
type update struct {
	progress     *int
	result       map[string]any
	errorMessage *string
}

// UpdateOption supplies an optional field to UpdateStatus.
type UpdateOption func(*update)

// WithProgress sets the job's progress (0-100).
func WithProgress(p int) UpdateOption {
	return func(u *update) { u.progress = &p }
}

// WithResult attaches a structured result, serialized to the result column.
func WithResult(result map[string]any) UpdateOption {
	return func(u *update) { u.result = result }
}

// WithError attaches a human-readable failure message.
func WithError(msg string) UpdateOption {
	return func(u *update) { u.errorMessage = &msg }
}

// UpdateStatus moves a job to status, writing only the supplied optional
// fields. Transitions out of a terminal state are rejected with
// ErrInvalidTransition; repeating a non-terminal status is allowed for
// progress updates.
func (t *Tracker) UpdateStatus(ctx context.Context, id string, status types.JobStatus, opts ...UpdateOption) error {
	if !status.Valid() {
		return fmt.Errorf("command %s: %q: %w", id, status, types.ErrInvalidStatus)
	}

	current, err := t.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	if !types.ValidTransition(current.Status, status) {
		return fmt.Errorf("command %s: %s -> %s: %w", id, current.Status, status, types.ErrInvalidTransition)
	}

	var u update
	for _, opt := range opts {
		opt(&u)
	}

	patch := types.Record{"status": string(status)}
	if u.progress != nil {
		patch["progress"] = clampProgress(*u.progress)
	}
	if u.result != nil {
		b, err := json.Marshal(u.result)
		if err != nil {
			return fmt.Errorf("serializing command result: %w", err)
		}
		patch["result"] = string(b)
	}
	if u.errorMessage != nil {
		patch["error_message"] = *u.errorMessage
	}

	rows, err := t.repo.Update(ctx, CommandTable, id, patch)
	if err != nil {
		return fmt.Errorf("updating command %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("updating command %s: %w", id, types.ErrNotFound)
	}
	t.logger.Debug("updated command",
		zap.String("id", id),
		zap.String("status", string(status)))
	return nil
}

// GetStatus point-looks-up a job record. A missing id yields ErrNotFound.
func (t *Tracker) GetStatus(ctx context.Context, id string) (*types.Job, error) {
	rows, err := t.repo.Query(ctx, "SELECT * FROM command WHERE id = :id", map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("reading command %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("command %s: %w", id, types.ErrNotFound)
	}
	return jobFromRecord(rows[0]), nil
}

// List returns the most recent job records, newest first.
func (t *Tracker) List(ctx context.Context, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.repo.Query(ctx, "SELECT * FROM command ORDER BY created DESC LIMIT :limit",
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	jobs := make([]*types.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, jobFromRecord(row))
	}
	return jobs, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// jobFromRecord maps a stored row onto a Job, deserializing the JSON text
// columns. Malformed stored JSON is tolerated and left absent.
func jobFromRecord(rec types.Record) *types.Job {
	job := &types.Job{
		ID:           str(rec["id"]),
		App:          str(rec["app"]),
		Command:      str(rec["command"]),
		Status:       types.JobStatus(str(rec["status"])),
		ErrorMessage: str(rec["error_message"]),
		Progress:     toInt(rec["progress"]),
		Created:      str(rec["created"]),
		Updated:      str(rec["updated"]),
	}
	if s := str(rec["input"]); s != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			job.Input = m
		}
	}
	if s := str(rec["result"]); s != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			job.Result = m
		}
	}
	return job
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
