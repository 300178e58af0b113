package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notedeck/notedeck/pkg/types"
)

// Repository is the table-oriented CRUD façade over one connection pool. It
// owns no native resources itself; every write borrows the pool's write
// queue and every read borrows a fresh read-only connection.
type Repository struct {
	pool   *Pool
	specs  types.FieldSpecs
	logger *zap.Logger
}

// RepositoryOption customizes a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets the repository's logger.
func WithRepositoryLogger(logger *zap.Logger) RepositoryOption {
	return func(r *Repository) { r.logger = logger }
}

// WithFieldSpecs replaces the default field coercion table.
func WithFieldSpecs(specs types.FieldSpecs) RepositoryOption {
	return func(r *Repository) { r.specs = specs }
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *Pool, opts ...RepositoryOption) *Repository {
	r := &Repository{
		pool:   pool,
		specs:  types.DefaultFieldSpecs(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ types.Repository = (*Repository)(nil)

// nowUTC stamps created/updated columns.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// quoteColumn wraps SQL-keyword column names in double quotes. Only "in"
// and "out" need this; they carry relationship edges.
func quoteColumn(col string) string {
	if col == "in" || col == "out" {
		return `"` + col + `"`
	}
	return col
}

// validateData checks every key of data against the identifier pattern and
// returns a copy with any caller-supplied id stripped.
func validateData(data types.Record) (types.Record, error) {
	out := make(types.Record, len(data))
	for key, value := range data {
		if key == "id" {
			continue
		}
		if err := types.ValidIdentifier(key); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// sortedColumns returns prepared's column names in deterministic order.
func sortedColumns(prepared types.Record) []string {
	cols := make([]string, 0, len(prepared))
	for col := range prepared {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Create inserts a new record, generating a composite id and stamping
// created/updated, then returns the stored row re-read from the database.
func (r *Repository) Create(ctx context.Context, table string, data types.Record) (types.Record, error) {
	if err := types.ValidIdentifier(table); err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	rec, err := validateData(data)
	if err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}

	now := nowUTC()
	rec["created"] = now
	rec["updated"] = now

	id := types.NewRecordID(table)
	row, err := r.insertRecord(ctx, table, id, rec)
	if err != nil {
		return nil, wrapOp("creating record", err)
	}
	if row == nil {
		return nil, fmt.Errorf("creating record: read-back found no row: %w", types.ErrNotFound)
	}
	r.logger.Debug("created record", zap.String("id", id))
	return row, nil
}

// insertRecord writes one validated record under the given id and re-reads
// it. Shared by Create and the create path of Upsert, which must honor the
// caller-supplied id.
func (r *Repository) insertRecord(ctx context.Context, table, id string, rec types.Record) (types.Record, error) {
	rec["id"] = id
	prepared, err := encodeRecord(r.specs, rec)
	if err != nil {
		return nil, err
	}

	cols := sortedColumns(prepared)
	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteColumn(col)
		args[i] = prepared[col]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	if _, err := r.pool.ExecWrite(ctx, query, args...); err != nil {
		return nil, err
	}
	return r.readByID(ctx, table, id)
}

// Update patches an existing record. A table prefix on id wins over the
// table argument; updated is always re-stamped. Returns the stored row, or
// an empty slice if the row vanished between write and read-back.
func (r *Repository) Update(ctx context.Context, table, id string, data types.Record) ([]types.Record, error) {
	recordID := id
	if t, _, err := types.SplitRecordID(id); err == nil {
		table = t
	} else {
		recordID = table + ":" + id
	}
	if err := types.ValidIdentifier(table); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	rec, err := validateData(data)
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	rec["updated"] = nowUTC()

	prepared, err := encodeRecord(r.specs, rec)
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}

	cols := sortedColumns(prepared)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = quoteColumn(col) + " = ?"
		args = append(args, prepared[col])
	}
	args = append(args, recordID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))

	if _, err := r.pool.ExecWrite(ctx, query, args...); err != nil {
		return nil, wrapOp("updating record", err)
	}

	row, err := r.readByID(ctx, table, recordID)
	if err != nil {
		return nil, wrapOp("updating record", err)
	}
	if row == nil {
		return []types.Record{}, nil
	}
	return []types.Record{row}, nil
}

// Upsert creates or updates a record by id. A missing id generates a new
// one. The create path stores the record under the given id, so repeating
// the call converges on one row.
func (r *Repository) Upsert(ctx context.Context, table, id string, data types.Record, addTimestamp bool) ([]types.Record, error) {
	if err := types.ValidIdentifier(table); err != nil {
		return nil, fmt.Errorf("upserting record: %w", err)
	}
	rec, err := validateData(data)
	if err != nil {
		return nil, fmt.Errorf("upserting record: %w", err)
	}
	if addTimestamp {
		rec["updated"] = nowUTC()
	}

	recordID := id
	if recordID == "" {
		recordID = types.NewRecordID(table)
	}

	existing, err := r.readByID(ctx, table, recordID)
	if err != nil {
		return nil, wrapOp("upserting record", err)
	}
	if existing != nil {
		return r.Update(ctx, table, recordID, rec)
	}

	now := nowUTC()
	if _, ok := rec["created"]; !ok {
		rec["created"] = now
	}
	if _, ok := rec["updated"]; !ok {
		rec["updated"] = now
	}
	row, err := r.insertRecord(ctx, table, recordID, rec)
	if err != nil {
		return nil, wrapOp("upserting record", err)
	}
	if row == nil {
		return []types.Record{}, nil
	}
	return []types.Record{row}, nil
}

// Delete removes the record identified by a composite id. Deleting a
// missing row is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	table, _, err := types.SplitRecordID(id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if err := types.ValidIdentifier(table); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if _, err := r.pool.ExecWrite(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return wrapOp("deleting record", err)
	}
	r.logger.Debug("deleted record", zap.String("id", id))
	return nil
}

// Relate builds or overwrites a relationship row between two records. The
// relationship table is provisioned on first use; extra data keys become
// additional text columns.
func (r *Repository) Relate(ctx context.Context, source, relationship, target string, data types.Record) ([]types.Record, error) {
	if err := types.ValidIdentifier(relationship); err != nil {
		return nil, fmt.Errorf("relating records: %w", err)
	}
	extra, err := validateData(data)
	if err != nil {
		return nil, fmt.Errorf("relating records: %w", err)
	}

	if err := r.EnsureTable(ctx, relationship, relationshipDDL(relationship, extra)); err != nil {
		return nil, err
	}

	now := nowUTC()
	rec := types.Record{
		"in":      source,
		"out":     target,
		"created": now,
		"updated": now,
	}
	for k, v := range extra {
		rec[k] = v
	}
	relID := types.NewRecordID(relationship)
	rec["id"] = relID

	prepared, err := encodeRecord(r.specs, rec)
	if err != nil {
		return nil, fmt.Errorf("relating records: %w", err)
	}
	cols := sortedColumns(prepared)
	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteColumn(col)
		args[i] = prepared[col]
	}
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		relationship,
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	if _, err := r.pool.ExecWrite(ctx, query, args...); err != nil {
		return nil, wrapOp("relating records", err)
	}

	row, err := r.readByID(ctx, relationship, relID)
	if err != nil {
		return nil, wrapOp("relating records", err)
	}
	if row == nil {
		// The edge may have been replaced under a different id by a
		// concurrent relate; callers get an empty collection.
		return []types.Record{}, nil
	}
	r.logger.Debug("related records",
		zap.String("in", source),
		zap.String("relationship", relationship),
		zap.String("out", target))
	return []types.Record{row}, nil
}

// relationshipDDL builds an idempotent create statement for a relationship
// table: the edge columns plus a text column per extra data key.
func relationshipDDL(relationship string, extra types.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", relationship)
	b.WriteString("\tid TEXT PRIMARY KEY,\n")
	b.WriteString("\t\"in\" TEXT NOT NULL,\n")
	b.WriteString("\t\"out\" TEXT NOT NULL,\n")
	b.WriteString("\tcreated TEXT NOT NULL,\n")
	b.WriteString("\tupdated TEXT NOT NULL")
	for _, col := range sortedColumns(extra) {
		fmt.Fprintf(&b, ",\n\t%s TEXT", quoteColumn(col))
	}
	b.WriteString("\n)")
	return b.String()
}

// Insert creates each row in sequence. With ignoreDuplicates set, rows that
// violate a uniqueness constraint are skipped and the rest still land.
func (r *Repository) Insert(ctx context.Context, table string, rows []types.Record, ignoreDuplicates bool) ([]types.Record, error) {
	results := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		created, err := r.Create(ctx, table, row)
		if err != nil {
			if ignoreDuplicates && errors.Is(err, types.ErrIntegrity) {
				r.logger.Debug("skipped duplicate row", zap.String("table", table))
				continue
			}
			return nil, fmt.Errorf("inserting records: %w", err)
		}
		results = append(results, created)
	}
	return results, nil
}

// Query translates a dialect query, executes it through the read path, and
// applies any omit/fetch directives to the result rows.
func (r *Repository) Query(ctx context.Context, query string, vars map[string]any) ([]types.Record, error) {
	stmt := Translate(query, vars)
	switch stmt.Kind {
	case StmtCreateContent:
		return nil, fmt.Errorf("querying records: %w", types.ErrUseCreate)
	case StmtTextSearch:
		return nil, fmt.Errorf("querying records: full-text search requires an FTS extension: %w", types.ErrNotImplemented)
	case StmtVectorSearch:
		return nil, fmt.Errorf("querying records: vector search requires a vector extension: %w", types.ErrNotImplemented)
	}

	db, err := r.pool.Reader()
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	args := make([]any, 0, len(stmt.Params))
	for _, name := range stmt.Params {
		args = append(args, sql.Named(name, vars[name]))
	}

	rows, err := db.QueryContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, wrapOp("querying records", err)
	}
	records, err := scanRows(rows, r.specs)
	if err != nil {
		return nil, wrapOp("querying records", err)
	}

	for _, rec := range records {
		applyOmit(rec, stmt.Omit)
		r.applyFetch(ctx, rec, stmt.Fetch)
	}
	return records, nil
}

// applyFetch resolves composite-id fields into full records. Resolution
// failures are logged and leave the id in place rather than failing the
// whole query.
func (r *Repository) applyFetch(ctx context.Context, rec types.Record, fields []string) {
	for _, field := range fields {
		id, ok := rec[field].(string)
		if !ok {
			continue
		}
		table, _, err := types.SplitRecordID(id)
		if err != nil || types.ValidIdentifier(table) != nil {
			continue
		}
		resolved, err := r.readByID(ctx, table, id)
		if err != nil || resolved == nil {
			r.logger.Warn("fetch directive could not resolve record",
				zap.String("field", field),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		rec[field] = resolved
	}
}

// EnsureTable idempotently applies a caller-supplied create-if-missing
// statement through the write path.
func (r *Repository) EnsureTable(ctx context.Context, table, ddl string) error {
	if err := types.ValidIdentifier(table); err != nil {
		return fmt.Errorf("ensuring table: %w", err)
	}
	if _, err := r.pool.ExecWrite(ctx, ddl); err != nil {
		return wrapOp("ensuring table "+table, err)
	}
	return nil
}

// Close releases the underlying pool, draining pending writes.
func (r *Repository) Close() error {
	return r.pool.Close()
}

// readByID point-looks-up one row through the read path. Returns nil with
// no error when the row does not exist.
func (r *Repository) readByID(ctx context.Context, table, id string) (types.Record, error) {
	db, err := r.pool.Reader()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	records, err := scanRows(rows, r.specs)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
