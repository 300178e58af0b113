// Package paths resolves database locations from URL-style configuration
// strings and environment overrides.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDatabaseURL is used when neither flag, config, nor environment
// provides a database location.
const DefaultDatabaseURL = "sqlite:///./data/notedeck.db"

// EnvDatabaseURL overrides the configured database URL.
const EnvDatabaseURL = "NOTEDECK_DB_URL"

// DatabasePath converts a sqlite URL into a filesystem path by stripping the
// scheme prefix. Plain paths pass through unchanged. Absolute paths keep
// their leading slash after the three-slash prefix, so they carry four.
//
//	sqlite:///./data/notedeck.db  -> ./data/notedeck.db
//	sqlite:////var/lib/nd.db      -> /var/lib/nd.db
//	sqlite://relative.db          -> relative.db
func DatabasePath(url string) string {
	if rest, ok := strings.CutPrefix(url, "sqlite:///"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(url, "sqlite://"); ok {
		return rest
	}
	return url
}

// ResolveDatabaseURL returns the database URL following the precedence
// chain: flag > config value > NOTEDECK_DB_URL env > default.
func ResolveDatabaseURL(flag, configValue string) string {
	if flag != "" {
		return flag
	}
	if configValue != "" {
		return configValue
	}
	if env := os.Getenv(EnvDatabaseURL); env != "" {
		return env
	}
	return DefaultDatabaseURL
}

// EnsureParentDir creates the directory containing path if it does not
// exist, so opening the database file cannot fail on a missing directory.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
