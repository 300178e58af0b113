package sqlite

// Persisted schema for the notebook domain. Every statement is idempotent
// (IF NOT EXISTS) so the pool can apply the whole script at initialization
// without a separate migration step.

const notebookTableDDL = `CREATE TABLE IF NOT EXISTS notebook (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	archived INTEGER DEFAULT 0,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

const sourceTableDDL = `CREATE TABLE IF NOT EXISTS source (
	id TEXT PRIMARY KEY,
	title TEXT,
	topics TEXT,
	asset_file_path TEXT,
	asset_url TEXT,
	full_text TEXT,
	embedding TEXT,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

const noteTableDDL = `CREATE TABLE IF NOT EXISTS note (
	id TEXT PRIMARY KEY,
	title TEXT,
	content TEXT,
	note_type TEXT,
	embedding TEXT,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

const sourceInsightTableDDL = `CREATE TABLE IF NOT EXISTS source_insight (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	insight_type TEXT,
	content TEXT,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

const transformationTableDDL = `CREATE TABLE IF NOT EXISTS transformation (
	id TEXT PRIMARY KEY,
	name TEXT,
	title TEXT,
	description TEXT,
	prompt TEXT,
	apply_default INTEGER DEFAULT 0,
	is_built_in INTEGER DEFAULT 0,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

// Relationship tables carry graph edges: "in" is the source record id,
// "out" the target. One edge per pair; relate overwrites.
const referenceTableDDL = `CREATE TABLE IF NOT EXISTS reference (
	id TEXT PRIMARY KEY,
	"in" TEXT NOT NULL,
	"out" TEXT NOT NULL,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

const artifactTableDDL = `CREATE TABLE IF NOT EXISTS artifact (
	id TEXT PRIMARY KEY,
	"in" TEXT NOT NULL,
	"out" TEXT NOT NULL,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
)`

// SchemaDDL returns the statements applied at pool initialization, one
// statement per entry, in dependency order.
func SchemaDDL() []string {
	return []string{
		notebookTableDDL,
		sourceTableDDL,
		noteTableDDL,
		sourceInsightTableDDL,
		transformationTableDDL,
		referenceTableDDL,
		artifactTableDDL,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reference_edge ON reference("in", "out")`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_artifact_edge ON artifact("in", "out")`,
		`CREATE INDEX IF NOT EXISTS idx_source_insight_source ON source_insight(source)`,
		`CREATE INDEX IF NOT EXISTS idx_notebook_archived ON notebook(archived)`,
	}
}
