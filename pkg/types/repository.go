package types

import (
	"context"
	"errors"
)

// Repository is the table-oriented persistence surface consumed by domain
// code. Implementations exist per backend kind; callers obtain one through
// the store factory and must Close it when done.
type Repository interface {
	// Query translates and executes a dialect query with named variables,
	// returning the matching rows after post-fetch directives are applied.
	Query(ctx context.Context, query string, vars map[string]any) ([]Record, error)

	// Create inserts a new record into table, generating a composite id and
	// stamping created/updated. Returns the stored row re-read from the
	// database.
	Create(ctx context.Context, table string, data Record) (Record, error)

	// Update patches an existing record by id, re-stamping updated. Returns
	// the stored row in a single-element slice, or an empty slice if the row
	// vanished between write and read-back.
	Update(ctx context.Context, table, id string, data Record) ([]Record, error)

	// Upsert creates or updates a record. When id is empty a new one is
	// generated. addTimestamp re-stamps updated on the patch.
	Upsert(ctx context.Context, table, id string, data Record, addTimestamp bool) ([]Record, error)

	// Delete removes the record identified by a composite id. Deleting a
	// missing row is not an error.
	Delete(ctx context.Context, id string) error

	// Relate creates (or replaces) a relationship row between two records,
	// with optional extra data. Returns the created row in a single-element
	// slice.
	Relate(ctx context.Context, source, relationship, target string, data Record) ([]Record, error)

	// Insert creates each row in sequence. When ignoreDuplicates is set,
	// rows that violate a uniqueness constraint are skipped and the rest
	// still land; partial success is by design.
	Insert(ctx context.Context, table string, rows []Record, ignoreDuplicates bool) ([]Record, error)

	// EnsureTable idempotently applies a CREATE TABLE IF NOT EXISTS
	// statement, letting collaborators self-provision schema lazily.
	EnsureTable(ctx context.Context, table, ddl string) error

	// Close releases backend resources, draining any pending writes.
	Close() error
}

// Failure categories surfaced by Repository operations. Implementations wrap
// native engine errors with exactly one of these so callers can branch with
// errors.Is without parsing messages.
var (
	// ErrNotFound reports a point lookup that matched zero rows.
	ErrNotFound = errors.New("record not found")

	// ErrIntegrity reports a uniqueness or constraint violation. Callers
	// doing duplicate-tolerant bulk inserts may swallow it.
	ErrIntegrity = errors.New("integrity constraint violated")

	// ErrOperational reports that the engine could not execute: lock
	// contention past the busy timeout, disk errors, missing tables.
	// Distinct from ErrIntegrity so callers can decide whether to retry.
	ErrOperational = errors.New("operational error")

	// ErrInvalidQuery reports malformed SQL reaching the engine.
	ErrInvalidQuery = errors.New("invalid SQL")

	// ErrNotImplemented reports a dialect capability (full-text or vector
	// search) that the embedded engine does not support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUseCreate reports a CREATE ... CONTENT dialect statement routed
	// through Query; callers must use Create instead, which owns id
	// generation and timestamping.
	ErrUseCreate = errors.New("CREATE CONTENT queries must use Create")
)

// Connection pool conditions.
var (
	// ErrWriteTimeout reports that a queued write was not served within the
	// pool's write timeout. The unit of work may still complete in the
	// background; the timeout bounds the caller's wait only.
	ErrWriteTimeout = errors.New("database write operation timed out")

	// ErrPoolClosed reports an operation against a closed pool.
	ErrPoolClosed = errors.New("connection pool is closed")
)
