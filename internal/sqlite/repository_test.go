package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/notedeck/notedeck/pkg/types"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	repo := NewRepository(NewPool(path))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreate(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	row, err := repo.Create(ctx, "notebook", types.Record{"name": "N", "description": "D"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	id := types.EnsureRecordID(row["id"])
	if !strings.HasPrefix(id, "notebook:") {
		t.Errorf("id = %q, want notebook: prefix", id)
	}
	if row["name"] != "N" {
		t.Errorf("name = %v, want N", row["name"])
	}
	if row["created"] == nil || row["created"] != row["updated"] {
		t.Errorf("created = %v, updated = %v, want equal", row["created"], row["updated"])
	}
}

func TestCreateStripsCallerID(t *testing.T) {
	repo := testRepository(t)

	row, err := repo.Create(context.Background(), "notebook", types.Record{"id": "notebook:mine", "name": "N"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row["id"] == "notebook:mine" {
		t.Error("caller-supplied id must be replaced")
	}
}

func TestCreateRejectsBadIdentifiers(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "note; DROP TABLE note", types.Record{"name": "N"}); !errors.Is(err, types.ErrInvalidIdentifier) {
		t.Errorf("bad table: %v, want ErrInvalidIdentifier", err)
	}
	if _, err := repo.Create(ctx, "note", types.Record{"na me": "N"}); !errors.Is(err, types.ErrInvalidIdentifier) {
		t.Errorf("bad column: %v, want ErrInvalidIdentifier", err)
	}
}

func TestCreateIntegrityViolation(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	ddl := "CREATE TABLE IF NOT EXISTS tagged (id TEXT PRIMARY KEY, tag TEXT UNIQUE, created TEXT, updated TEXT)"
	if err := repo.EnsureTable(ctx, "tagged", ddl); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if _, err := repo.Create(ctx, "tagged", types.Record{"tag": "dup"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := repo.Create(ctx, "tagged", types.Record{"tag": "dup"})
	if !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("duplicate create: %v, want ErrIntegrity", err)
	}
}

func TestUpdate(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	row, err := repo.Create(ctx, "note", types.Record{"title": "before"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := types.EnsureRecordID(row["id"])

	rows, err := repo.Update(ctx, "note", id, types.Record{"title": "after"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["title"] != "after" {
		t.Errorf("title = %v, want after", rows[0]["title"])
	}
	if rows[0]["created"] != row["created"] {
		t.Errorf("created changed on update: %v -> %v", row["created"], rows[0]["created"])
	}

	// An id prefix overrides an inconsistent table argument.
	rows, err = repo.Update(ctx, "notebook", id, types.Record{"title": "again"})
	if err != nil {
		t.Fatalf("Update with wrong table: %v", err)
	}
	if len(rows) != 1 || rows[0]["title"] != "again" {
		t.Errorf("prefix should win over table argument: %#v", rows)
	}
}

func TestUpdateMissingRow(t *testing.T) {
	repo := testRepository(t)

	rows, err := repo.Update(context.Background(), "note", "note:gone", types.Record{"title": "x"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want empty result", len(rows))
	}
}

func TestUpsertIdempotence(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	id := types.NewRecordID("note")
	data := types.Record{"title": "T", "content": "C"}

	first, err := repo.Upsert(ctx, "note", id, data, true)
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first Upsert returned %d rows", len(first))
	}
	if got := types.EnsureRecordID(first[0]["id"]); got != id {
		t.Errorf("stored id = %q, want the caller-supplied %q", got, id)
	}

	second, err := repo.Upsert(ctx, "note", id, data, true)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second Upsert returned %d rows", len(second))
	}

	rows, err := repo.Query(ctx, "SELECT * FROM note WHERE title = :t", map[string]any{"t": "T"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("stored rows = %d, want 1", len(rows))
	}

	firstUpdated, err := time.Parse(time.RFC3339Nano, first[0]["updated"].(string))
	if err != nil {
		t.Fatalf("parsing first updated: %v", err)
	}
	secondUpdated, err := time.Parse(time.RFC3339Nano, second[0]["updated"].(string))
	if err != nil {
		t.Fatalf("parsing second updated: %v", err)
	}
	if secondUpdated.Before(firstUpdated) {
		t.Errorf("second updated %v before first %v", secondUpdated, firstUpdated)
	}
}

func TestUpsertGeneratesID(t *testing.T) {
	repo := testRepository(t)

	rows, err := repo.Upsert(context.Background(), "note", "", types.Record{"title": "T"}, true)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if !strings.HasPrefix(types.EnsureRecordID(rows[0]["id"]), "note:") {
		t.Errorf("id = %v", rows[0]["id"])
	}
}

func TestDelete(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	row, err := repo.Create(ctx, "note", types.Record{"title": "T"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := types.EnsureRecordID(row["id"])

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows, err := repo.Query(ctx, "SELECT * FROM note WHERE id = :id", map[string]any{"id": id})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("deleted row still visible: %#v", rows)
	}

	// Deleting a missing row is idempotent.
	if err := repo.Delete(ctx, id); err != nil {
		t.Errorf("second Delete: %v", err)
	}

	// An id without a table prefix is a validation error.
	if err := repo.Delete(ctx, "noprefix"); !errors.Is(err, types.ErrInvalidRecordID) {
		t.Errorf("Delete without prefix: %v, want ErrInvalidRecordID", err)
	}
}

func TestRelateAndJoinQuery(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	nb, err := repo.Create(ctx, "notebook", types.Record{"name": "NB"})
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	src, err := repo.Create(ctx, "source", types.Record{"title": "S"})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	nbID := types.EnsureRecordID(nb["id"])
	srcID := types.EnsureRecordID(src["id"])

	rel, err := repo.Relate(ctx, srcID, "reference", nbID, nil)
	if err != nil {
		t.Fatalf("Relate: %v", err)
	}
	if len(rel) != 1 {
		t.Fatalf("Relate returned %d rows", len(rel))
	}
	if rel[0]["in"] != srcID || rel[0]["out"] != nbID {
		t.Errorf("edge = %v -> %v", rel[0]["in"], rel[0]["out"])
	}

	rows, err := repo.Query(ctx,
		`SELECT s.* FROM source s INNER JOIN reference r ON r."in" = s.id WHERE r."out" = $nb`,
		map[string]any{"nb": nbID})
	if err != nil {
		t.Fatalf("join query: %v", err)
	}
	if len(rows) != 1 || types.EnsureRecordID(rows[0]["id"]) != srcID {
		t.Errorf("join result = %#v", rows)
	}

	// Relating the same pair again replaces the edge instead of duplicating.
	if _, err := repo.Relate(ctx, srcID, "reference", nbID, nil); err != nil {
		t.Fatalf("second Relate: %v", err)
	}
	edges, err := repo.Query(ctx, `SELECT * FROM reference WHERE "in" = :src`, map[string]any{"src": srcID})
	if err != nil {
		t.Fatalf("edge query: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("edge count = %d, want 1", len(edges))
	}
}

func TestRelateProvisionsTable(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	rel, err := repo.Relate(ctx, "note:a", "mentions", "source:b", types.Record{"context": "intro"})
	if err != nil {
		t.Fatalf("Relate: %v", err)
	}
	if len(rel) != 1 || rel[0]["context"] != "intro" {
		t.Errorf("relationship row = %#v", rel)
	}
}

func TestInsert(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	ddl := "CREATE TABLE IF NOT EXISTS tagged (id TEXT PRIMARY KEY, tag TEXT UNIQUE, created TEXT, updated TEXT)"
	if err := repo.EnsureTable(ctx, "tagged", ddl); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	rows := []types.Record{{"tag": "a"}, {"tag": "a"}, {"tag": "b"}}

	// Without duplicate tolerance the violation aborts the batch.
	if _, err := repo.Insert(ctx, "tagged", rows, false); !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("Insert: %v, want ErrIntegrity", err)
	}

	// With it, the duplicate is skipped and the rest land.
	created, err := repo.Insert(ctx, "tagged", []types.Record{{"tag": "c"}, {"tag": "c"}, {"tag": "d"}}, true)
	if err != nil {
		t.Fatalf("Insert ignoring duplicates: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("created %d rows, want 2", len(created))
	}
}

func TestQueryStructuredFieldsRoundTrip(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	row, err := repo.Create(ctx, "source", types.Record{
		"title":  "S",
		"topics": []any{"go", "sqlite"},
		"asset":  map[string]any{"file_path": "/tmp/a.pdf"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	topics, ok := row["topics"].([]any)
	if !ok || len(topics) != 2 || topics[0] != "go" {
		t.Errorf("topics = %#v", row["topics"])
	}
	asset, ok := row["asset"].(map[string]any)
	if !ok || asset["file_path"] != "/tmp/a.pdf" {
		t.Errorf("asset = %#v", row["asset"])
	}
	if _, ok := asset["url"]; ok {
		t.Error("absent url must not appear in the asset object")
	}
}

func TestQuerySelectByIDRewrite(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	row, err := repo.Create(ctx, "notebook", types.Record{"name": "N"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := types.EnsureRecordID(row["id"])

	rows, err := repo.Query(ctx, "SELECT * FROM $id", map[string]any{"id": id})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || types.EnsureRecordID(rows[0]["id"]) != id {
		t.Errorf("rows = %#v", rows)
	}
}

func TestQueryOmitAndFetch(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	src, err := repo.Create(ctx, "source", types.Record{"title": "S", "full_text": "long text"})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	srcID := types.EnsureRecordID(src["id"])
	if _, err := repo.Create(ctx, "source_insight", types.Record{"source": srcID, "content": "summary"}); err != nil {
		t.Fatalf("create insight: %v", err)
	}

	rows, err := repo.Query(ctx, "SELECT * omit full_text FROM source", nil)
	if err != nil {
		t.Fatalf("omit query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if _, ok := rows[0]["full_text"]; ok {
		t.Error("full_text should be omitted")
	}

	rows, err = repo.Query(ctx, "SELECT * FROM source_insight WHERE source = $src fetch source",
		map[string]any{"src": srcID})
	if err != nil {
		t.Fatalf("fetch query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	fetched, ok := rows[0]["source"].(map[string]any)
	if !ok {
		t.Fatalf("source not resolved: %#v", rows[0]["source"])
	}
	if fetched["title"] != "S" {
		t.Errorf("resolved source = %#v", fetched)
	}
}

func TestQueryUnsupportedFunctions(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	_, err := repo.Query(ctx, "SELECT * FROM fn::text_search($q, $limit, $sources)", map[string]any{"q": "x"})
	if !errors.Is(err, types.ErrNotImplemented) {
		t.Errorf("text search: %v, want ErrNotImplemented", err)
	}
	_, err = repo.Query(ctx, "SELECT * FROM fn::vector_search($e, $l, $s, $n, $m)", nil)
	if !errors.Is(err, types.ErrNotImplemented) {
		t.Errorf("vector search: %v, want ErrNotImplemented", err)
	}
}

func TestQueryCreateContentSentinel(t *testing.T) {
	repo := testRepository(t)

	_, err := repo.Query(context.Background(), `CREATE notebook CONTENT {"name": "N"}`, nil)
	if !errors.Is(err, types.ErrUseCreate) {
		t.Errorf("err = %v, want ErrUseCreate", err)
	}
}

func TestQueryInvalidSQL(t *testing.T) {
	repo := testRepository(t)

	_, err := repo.Query(context.Background(), "SELECT FROM WHERE", nil)
	if !errors.Is(err, types.ErrOperational) {
		t.Errorf("err = %v, want ErrOperational", err)
	}
}

func TestQueryDialectDelete(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	row, err := repo.Create(ctx, "note", types.Record{"title": "T"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := types.EnsureRecordID(row["id"])

	// Deletes route through the read path in dialect form only when the
	// caller opts into raw queries; the translator still rewrites them.
	stmt := Translate("DELETE note WHERE id = $id", map[string]any{"id": id})
	if stmt.SQL != "DELETE FROM note WHERE id = :id" {
		t.Fatalf("translated SQL = %q", stmt.SQL)
	}
	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
