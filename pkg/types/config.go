package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for opening a Repository.
type Config struct {
	// Kind selects the backend implementation.
	Kind string `json:"kind" yaml:"kind"`

	// URL locates the database. For the sqlite kind this is a
	// "sqlite:///path/to.db" style string; the scheme prefix is stripped to
	// obtain the file path.
	URL string `json:"url" yaml:"url"`

	// MaxReaders caps concurrent read connections. Zero means the default.
	MaxReaders int `json:"max_readers" yaml:"max_readers"`

	// WriteTimeout bounds how long a caller waits for a queued write.
	// Zero means the default (30s).
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// Supported backend kinds.
const (
	KindSQLite  = "sqlite"
	KindSurreal = "surreal"
)

// Config validation errors.
var (
	ErrKindEmpty   = errors.New("database kind must not be empty")
	ErrKindUnknown = errors.New("unknown database kind")

	// ErrBackendUnavailable reports a recognized kind whose implementation
	// is not bundled in this build (the graph backend runs out of process).
	ErrBackendUnavailable = errors.New("backend not available in this build")
)

// knownKinds lists the kinds that Validate accepts.
var knownKinds = map[string]bool{
	KindSQLite:  true,
	KindSurreal: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Kind == "" {
		return ErrKindEmpty
	}
	if !knownKinds[c.Kind] {
		return ErrKindUnknown
	}
	return nil
}
