package store

import (
	"context"
	"path/filepath"
	"testing"

	"clawbot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "clawbot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddJob(ctx, "*/5 * * * *", "reminder", "Drink water")
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	jobs, err := s.EnabledJobs(ctx)
	if err != nil {
		t.Fatalf("enabled jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	j := jobs[0]
	if j.ID != id || j.Schedule != "*/5 * * * *" || j.Task != "reminder" || j.Message != "Drink water" || !j.Enabled {
		t.Fatalf("unexpected job: %+v", j)
	}

	ok, err := s.DisableJob(ctx, id)
	if err != nil || !ok {
		t.Fatalf("disable: ok=%v err=%v", ok, err)
	}
	// Second disable reports not-found rather than failing.
	ok, err = s.DisableJob(ctx, id)
	if err != nil || ok {
		t.Fatalf("second disable: ok=%v err=%v", ok, err)
	}

	jobs, err = s.EnabledJobs(ctx)
	if err != nil {
		t.Fatalf("enabled jobs after disable: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("disabled job still enumerated: %+v", jobs)
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, turn := range []struct{ role, content string }{
		{"user", "one"},
		{"assistant", "two"},
		{"user", "three"},
	} {
		if err := s.AppendMessage(ctx, turn.role, turn.content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.History(ctx, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Fatalf("history out of order: %+v", msgs)
	}

	if err := s.ClearHistory(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, err = s.History(ctx, 10)
	if err != nil {
		t.Fatalf("history after clear: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("history not empty after clear: %+v", msgs)
	}
}

func TestWorkspaceFileLog(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogFile(ctx, "hello.py", "Generated file: hello.py"); err != nil {
		t.Fatalf("log file: %v", err)
	}
	if err := s.LogFile(ctx, "notes.txt", ""); err != nil {
		t.Fatalf("log file without description: %v", err)
	}

	files, err := s.Files(ctx)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
