// Shared helpers for the integration suite: each test gets its own database
// file under a temp directory, opened through the store factory the way the
// CLI opens it.
package integration

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/notedeck/notedeck/internal/sqlite"
	"github.com/notedeck/notedeck/internal/store"
	"github.com/notedeck/notedeck/pkg/types"
)

// newTestRepository opens a repository on a fresh database file and tears
// down its pools when the test ends.
func newTestRepository(t *testing.T) types.Repository {
	t.Helper()

	pools := sqlite.NewPoolManager()
	t.Cleanup(func() {
		if err := pools.CloseAll(); err != nil {
			t.Errorf("closing pools: %v", err)
		}
	})

	cfg := types.Config{
		Kind: types.KindSQLite,
		URL:  "sqlite:///" + filepath.Join(t.TempDir(), "notedeck.db"),
	}
	repo, err := store.Open(cfg, pools, zap.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return repo
}
