package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/notedeck/notedeck/internal/sqlite"
	"github.com/notedeck/notedeck/pkg/types"
)

func testTracker(t *testing.T) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	repo := sqlite.NewRepository(sqlite.NewPool(path))
	t.Cleanup(func() { repo.Close() })
	return NewTracker(repo)
}

func TestTrackerCreate(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "open_notebook", "build_index", map[string]any{"source": "source:abc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	job, err := tr.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.Status != types.JobQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("progress = %d, want 0", job.Progress)
	}
	if job.Input["source"] != "source:abc" {
		t.Errorf("input = %#v", job.Input)
	}
	if job.App != "open_notebook" || job.Command != "build_index" {
		t.Errorf("app/command = %s/%s", job.App, job.Command)
	}
}

func TestTrackerLifecycle(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "app", "cmd", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := tr.UpdateStatus(ctx, id, types.JobRunning, WithProgress(50)); err != nil {
		t.Fatalf("to running: %v", err)
	}
	job, err := tr.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.Status != types.JobRunning || job.Progress != 50 {
		t.Errorf("status/progress = %s/%d, want running/50", job.Status, job.Progress)
	}

	result := map[string]any{"chunks": float64(12)}
	if err := tr.UpdateStatus(ctx, id, types.JobCompleted, WithResult(result), WithProgress(100)); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	job, err = tr.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.Status != types.JobCompleted || job.Progress != 100 {
		t.Errorf("status/progress = %s/%d", job.Status, job.Progress)
	}
	if job.Result["chunks"] != float64(12) {
		t.Errorf("result = %#v", job.Result)
	}
}

func TestTrackerTerminalStatesAreFinal(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "app", "cmd", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.UpdateStatus(ctx, id, types.JobFailed, WithError("boom")); err != nil {
		t.Fatalf("to failed: %v", err)
	}

	for _, next := range []types.JobStatus{types.JobRunning, types.JobCompleted, types.JobFailed} {
		if err := tr.UpdateStatus(ctx, id, next); !errors.Is(err, types.ErrInvalidTransition) {
			t.Errorf("failed -> %s: %v, want ErrInvalidTransition", next, err)
		}
	}

	job, err := tr.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.Status != types.JobFailed || job.ErrorMessage != "boom" {
		t.Errorf("job = %s / %q", job.Status, job.ErrorMessage)
	}
}

func TestTrackerRejectsUnknownStatus(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "app", "cmd", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.UpdateStatus(ctx, id, types.JobStatus("paused")); !errors.Is(err, types.ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestTrackerGetStatusNotFound(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	if err := tr.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := tr.GetStatus(ctx, "command:missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTrackerProgressClamped(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	id, err := tr.Create(ctx, "app", "cmd", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.UpdateStatus(ctx, id, types.JobRunning, WithProgress(250)); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	job, err := tr.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want clamped to 100", job.Progress)
	}
}

func TestTrackerList(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tr.Create(ctx, "app", "cmd", nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	jobs, err := tr.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("len = %d, want 2", len(jobs))
	}
}
