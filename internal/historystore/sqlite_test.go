package historystore

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Swind/go-fiber-runner/core"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runID, err := st.BeginRun(ctx, "badge", start)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	records := []core.ResumeRecord{
		{Tick: 1, Handle: 1, Name: "blink", First: true, StartedAt: start, Duration: 40 * time.Microsecond, Outcome: core.OutcomeSuspended},
		{Tick: 1, Handle: 2, Name: "oneshot", First: true, StartedAt: start.Add(time.Millisecond), Duration: time.Microsecond, Outcome: core.OutcomeCompleted, ExitReason: core.ExitReturned},
		{Tick: 2, Handle: 1, Name: "blink", StartedAt: start.Add(16 * time.Millisecond), Duration: 35 * time.Microsecond, Outcome: core.OutcomeSuspended},
	}
	for _, rec := range records {
		if err := st.Append(ctx, runID, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := st.Recent(ctx, runID, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(Recent) = %d, want 3", len(got))
	}
	if got[0].Tick != 2 || got[0].Task != "blink" || got[0].First {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Outcome != "completed" || got[1].ExitReason != core.ExitReturned || got[1].Handle != 2 {
		t.Errorf("second = %+v", got[1])
	}
	if !got[2].StartedAt.Equal(start) || got[2].Duration != 40*time.Microsecond || !got[2].First {
		t.Errorf("oldest = %+v", got[2])
	}

	limited, err := st.Recent(ctx, "", 1)
	if err != nil {
		t.Fatalf("Recent limited: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != runID {
		t.Fatalf("Recent(\"\", 1) = %+v", limited)
	}
}

func TestAppend_UnknownRunFails(t *testing.T) {
	st := testStore(t)
	err := st.Append(context.Background(), "no-such-run", core.ResumeRecord{Name: "x", StartedAt: time.Now()})
	if err == nil {
		t.Fatal("Append to an unknown run succeeded")
	}
}

func TestRuns(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older, err := st.BeginRun(ctx, "first", t0)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	newer, err := st.BeginRun(ctx, "second", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if older == newer {
		t.Fatal("run IDs collide")
	}
	if err := st.Append(ctx, older, core.ResumeRecord{Tick: 1, Name: "a", StartedAt: t0.Add(time.Second)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(Runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != newer || runs[0].Resumes != 0 || !runs[0].LastAt.IsZero() {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].ID != older || runs[1].Resumes != 1 || !runs[1].LastAt.Equal(t0.Add(time.Second)) {
		t.Errorf("older run = %+v", runs[1])
	}
}

// TestObserver_RecordsSchedulerResumes verifies the store persists a live scheduler's history
// Given: A scheduler whose ResumeObserver is the store's observer
// When: Two ticks run a periodic task and a one-shot task
// Then: Every resume is stored under the run, in order
func TestObserver_RecordsSchedulerResumes(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	clock := core.NewManualClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	runID, err := st.BeginRun(ctx, "observed", clock.Now())
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	s := core.NewScheduler(&core.SchedulerConfig{
		Name:           "observed",
		Clock:          clock,
		Logger:         core.NewNoOpLogger(),
		ResumeObserver: st.Observer(runID),
	})
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Teardown()

	_, _ = s.Create(func(ctx context.Context, arg any) {
		for {
			core.GetCurrentScheduler(ctx).Delay(1)
		}
	}, nil, "loop", 0)
	_, _ = s.Create(func(ctx context.Context, arg any) {}, nil, "once", 0)

	_ = s.Advance(1)
	_ = s.Advance(1)

	got, err := st.Recent(ctx, runID, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("stored resumes = %d, want 3", len(got))
	}
	if got[0].Task != "loop" || got[0].Tick != 2 {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Task != "once" || got[1].ExitReason != core.ExitReturned {
		t.Errorf("once = %+v", got[1])
	}
}
