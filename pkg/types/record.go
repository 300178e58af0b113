package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Record is a generic table row: a mapping from column name to a scalar or
// JSON-serializable value. Designated columns are "id" (composite record id),
// "created" and "updated" (RFC 3339 UTC timestamps).
type Record = map[string]any

// Record and identifier errors.
var (
	ErrInvalidIdentifier = errors.New("invalid SQL identifier")
	ErrInvalidRecordID   = errors.New("invalid record ID format")
)

// identRE matches safe SQL identifiers: letters, digits and underscores,
// not starting with a digit.
var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier checks that name is a safe SQL identifier (table or column
// name). Returns ErrInvalidIdentifier otherwise; this is the injection guard
// for every dynamically assembled statement.
func ValidIdentifier(name string) error {
	if !identRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// NewRecordID generates a composite record id of the form "table:token",
// where token is a 16-character hex slice of a random UUID.
func NewRecordID(table string) string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return table + ":" + token
}

// SplitRecordID splits a composite id into its table and token parts.
// Returns ErrInvalidRecordID if id carries no table prefix.
func SplitRecordID(id string) (table, token string, err error) {
	table, token, ok := strings.Cut(id, ":")
	if !ok || table == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
	}
	return table, token, nil
}

// EnsureRecordID coerces a backend-specific id representation into the
// composite-string form used throughout the persistence layer.
func EnsureRecordID(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// ParseRecordIDs walks a decoded value and normalizes any nested id
// representations to strings. For the embedded backend ids are already
// strings, so this recurses without modification; it keeps the façade
// surface identical across backends.
func ParseRecordIDs(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ParseRecordIDs(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ParseRecordIDs(item)
		}
		return out
	default:
		return v
	}
}
