package sqlite

import (
	"strings"

	"github.com/notedeck/notedeck/pkg/types"
)

// StatementKind classifies a translated dialect query. Most queries pass
// through as executable SQL; the remaining kinds are sentinels the caller
// must handle without touching the engine.
type StatementKind int

const (
	// StmtPassthrough is an executable SQL statement.
	StmtPassthrough StatementKind = iota

	// StmtCreateContent marks a "CREATE <table> CONTENT {...}" dialect
	// construct. It has no single-statement SQL equivalent because record
	// creation owns id generation and timestamping; callers use Create.
	StmtCreateContent

	// StmtTextSearch marks a query calling the full-text search dialect
	// function, which the embedded engine does not support.
	StmtTextSearch

	// StmtVectorSearch marks a query calling the vector search dialect
	// function, which the embedded engine does not support.
	StmtVectorSearch
)

// Statement is the typed result of translating a dialect query. Post-fetch
// directives (omit, fetch) are stripped from the SQL text and carried here
// instead of being smuggled through the variable mapping.
type Statement struct {
	Kind StatementKind

	// SQL is the engine-native statement, empty for sentinel kinds.
	SQL string

	// Table is the target table of a CREATE CONTENT construct.
	Table string

	// Params lists the named bind variables the SQL actually references,
	// in order of first appearance. Binding only these lets callers pass
	// a variable mapping wider than the query.
	Params []string

	// Omit holds field paths (one or two segments) to delete from each
	// result row after fetch.
	Omit [][]string

	// Fetch holds field names whose composite-id values are resolved into
	// full records after fetch.
	Fetch []string
}

// Translate converts a graph-dialect query and its bind variables into an
// engine-native statement. Translation never fails: unrecognized syntax
// passes through unmodified and surfaces as a native SQL error at execution
// time. vars is read, never mutated.
func Translate(query string, vars map[string]any) Statement {
	toks := lex(query)

	if kind, ok := searchFunctionKind(toks); ok {
		return Statement{Kind: kind}
	}
	if table, ok := createContentTable(toks); ok {
		return Statement{Kind: StmtCreateContent, Table: table}
	}

	toks = rewriteDelete(toks)
	toks = dropFromOnly(toks)

	var stmt Statement
	toks, stmt.Omit = extractOmit(toks)
	toks, stmt.Fetch = extractFetch(toks)
	toks = rewriteSelectByID(toks, vars)

	stmt.Kind = StmtPassthrough
	stmt.SQL = render(toks)
	stmt.Params = paramNames(toks)
	return stmt
}

type tokenKind int

const (
	tokIdent tokenKind = iota + 1
	tokVar             // bind variable; text holds the bare name
	tokString          // quoted literal or identifier, quotes included
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) isKeyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

// multiPunct lists multi-character operators lexed as single tokens so the
// renderer cannot split them.
var multiPunct = []string{">=", "<=", "!=", "<>", "==", "||", "::"}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// lex splits a dialect query into tokens. Dotted paths ("s.id", "s.*") are
// kept as single identifier tokens so clause extraction sees whole field
// paths. Both the dialect's "$name" and the native ":name" variable sigils
// produce tokVar.
func lex(query string) []token {
	var toks []token
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case (c == '$' || c == ':') && i+1 < len(query) && isIdentStart(query[i+1]):
			j := i + 1
			for j < len(query) && isIdentChar(query[j]) {
				j++
			}
			toks = append(toks, token{tokVar, query[i+1 : j]})
			i = j
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(query) {
				if query[j] == c {
					// Doubled quote escapes itself.
					if j+1 < len(query) && query[j+1] == c {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			toks = append(toks, token{tokString, query[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(query) && isIdentChar(query[j]) {
				j++
			}
			// Fold dotted segments into one path token.
			for j+1 < len(query) && query[j] == '.' {
				if query[j+1] == '*' {
					j += 2
					break
				}
				if !isIdentStart(query[j+1]) {
					break
				}
				j++
				for j < len(query) && isIdentChar(query[j]) {
					j++
				}
			}
			toks = append(toks, token{tokIdent, query[i:j]})
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(query) && (query[j] >= '0' && query[j] <= '9' || query[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, query[i:j]})
			i = j
		default:
			matched := false
			for _, op := range multiPunct {
				if strings.HasPrefix(query[i:], op) {
					toks = append(toks, token{tokPunct, op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				toks = append(toks, token{tokPunct, string(c)})
				i++
			}
		}
	}
	return toks
}

// render reassembles tokens into SQL text with conventional spacing.
func render(toks []token) string {
	var b strings.Builder
	for i, t := range toks {
		text := t.text
		if t.kind == tokVar {
			text = ":" + t.text
		}
		if i > 0 && !tightBefore(t) && !tightAfter(toks[i-1]) {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

func tightBefore(t token) bool {
	if t.kind != tokPunct {
		return false
	}
	switch t.text {
	case ",", ")", ";", "::", ".":
		return true
	}
	return false
}

func tightAfter(t token) bool {
	if t.kind != tokPunct {
		return false
	}
	switch t.text {
	case "(", "::", ".":
		return true
	}
	return false
}

// searchFunctionKind detects dialect calls to fn::text_search or
// fn::vector_search anywhere in the query.
func searchFunctionKind(toks []token) (StatementKind, bool) {
	for i := 0; i+2 < len(toks); i++ {
		if !toks[i].isKeyword("fn") || toks[i+1].text != "::" || toks[i+2].kind != tokIdent {
			continue
		}
		name := strings.ToLower(toks[i+2].text)
		switch {
		case strings.HasPrefix(name, "text_search"):
			return StmtTextSearch, true
		case strings.HasPrefix(name, "vector_search"):
			return StmtVectorSearch, true
		}
	}
	return 0, false
}

// createContentTable recognizes "CREATE <table> CONTENT {...}" at the start
// of the query and returns the target table.
func createContentTable(toks []token) (string, bool) {
	if len(toks) < 3 {
		return "", false
	}
	if toks[0].isKeyword("create") && toks[1].kind == tokIdent && toks[2].isKeyword("content") {
		return toks[1].text, true
	}
	return "", false
}

// rewriteDelete turns the dialect's "DELETE <table> WHERE ..." into SQL's
// "DELETE FROM <table> WHERE ...". A query already carrying FROM is left
// alone.
func rewriteDelete(toks []token) []token {
	if len(toks) < 3 {
		return toks
	}
	if toks[0].isKeyword("delete") && toks[1].kind == tokIdent && !toks[1].isKeyword("from") && toks[2].isKeyword("where") {
		out := make([]token, 0, len(toks)+1)
		out = append(out, toks[0], token{tokIdent, "FROM"})
		out = append(out, toks[1:]...)
		return out
	}
	return toks
}

// dropFromOnly removes the ONLY cardinality marker after FROM. The
// "exactly one result" contract is not enforced here.
func dropFromOnly(toks []token) []token {
	out := toks[:0:0]
	for i := 0; i < len(toks); i++ {
		out = append(out, toks[i])
		if toks[i].isKeyword("from") && i+1 < len(toks) && toks[i+1].isKeyword("only") {
			i++
		}
	}
	return out
}

// extractClause removes "<keyword> field[, field...]" from the token stream
// and returns the collected field paths. The field list ends at the first
// token that is not an identifier or a separating comma, so clause position
// relative to FROM/ORDER/LIMIT no longer matters.
func extractClause(toks []token, keyword string) ([]token, []string) {
	var fields []string
	out := toks[:0:0]
	for i := 0; i < len(toks); i++ {
		if !toks[i].isKeyword(keyword) || i+1 >= len(toks) || toks[i+1].kind != tokIdent {
			out = append(out, toks[i])
			continue
		}
		j := i + 1
		for {
			fields = append(fields, toks[j].text)
			j++
			// A comma followed by an identifier continues the list;
			// anything else ends it, so the clause needs no fixed
			// FROM/ORDER/LIMIT lookahead.
			if j+1 < len(toks) && toks[j].kind == tokPunct && toks[j].text == "," && toks[j+1].kind == tokIdent {
				j++
				continue
			}
			break
		}
		i = j - 1
	}
	return out, fields
}

func extractOmit(toks []token) ([]token, [][]string) {
	toks, fields := extractClause(toks, "omit")
	if len(fields) == 0 {
		return toks, nil
	}
	paths := make([][]string, 0, len(fields))
	for _, f := range fields {
		paths = append(paths, strings.Split(f, "."))
	}
	return toks, paths
}

func extractFetch(toks []token) ([]token, []string) {
	return extractClause(toks, "fetch")
}

// rewriteSelectByID turns the exact form "SELECT * FROM $var", where the
// variable resolves to a composite record id, into a point lookup on the
// id's table. The rewrite applies only when the variable ends the query;
// the table name is validated before it is spliced into SQL.
func rewriteSelectByID(toks []token, vars map[string]any) []token {
	if len(toks) != 4 {
		return toks
	}
	if !toks[0].isKeyword("select") || toks[1].text != "*" || !toks[2].isKeyword("from") || toks[3].kind != tokVar {
		return toks
	}
	id, ok := vars[toks[3].text].(string)
	if !ok {
		return toks
	}
	table, _, err := types.SplitRecordID(id)
	if err != nil || types.ValidIdentifier(table) != nil {
		return toks
	}
	return []token{
		toks[0], toks[1], toks[2],
		{tokIdent, table},
		{tokIdent, "WHERE"},
		{tokIdent, "id"},
		{tokPunct, "="},
		toks[3],
	}
}

// paramNames returns the distinct bind-variable names referenced by the
// token stream, in order of first appearance.
func paramNames(toks []token) []string {
	var names []string
	seen := map[string]bool{}
	for _, t := range toks {
		if t.kind == tokVar && !seen[t.text] {
			seen[t.text] = true
			names = append(names, t.text)
		}
	}
	return names
}
