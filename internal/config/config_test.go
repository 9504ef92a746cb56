package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleScenario = `
scheduler:
  name: badge
  capacity: 4
  tick_period_ms: 10
host:
  fps: 30
  max_frames: 120
metrics:
  addr: ":9100"
  poll_interval: 250ms
history:
  db: ":memory:"
tasks:
  - name: blink
    period_ms: 500
  - name: sensor
    period_ms: 100
    iterations: 5
    work_ms: 2
    stack_hint: 4096
    exit: delete
  - name: watchdog
    period_ms: 50
    kill_after_ms: 1000
`

func TestParse_Sample(t *testing.T) {
	sc, err := Parse([]byte(sampleScenario))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if sc.Scheduler.Name != "badge" || sc.Scheduler.Capacity != 4 || sc.Scheduler.TickPeriodMS != 10 {
		t.Errorf("scheduler = %+v", sc.Scheduler)
	}
	if sc.Scheduler.HistoryCapacity != 100 {
		t.Errorf("history_capacity = %d, want default 100", sc.Scheduler.HistoryCapacity)
	}
	if sc.Host.FPS != 30 || sc.Host.MinElapsedMS != 1 || sc.Host.MaxElapsedMS != 100 {
		t.Errorf("host = %+v", sc.Host)
	}
	if sc.Metrics.Addr != ":9100" || sc.Metrics.PollInterval != 250*time.Millisecond {
		t.Errorf("metrics = %+v", sc.Metrics)
	}
	if len(sc.Tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(sc.Tasks))
	}
	if sc.Tasks[0].Exit != ExitReturn {
		t.Errorf("tasks[0].exit = %q, want default %q", sc.Tasks[0].Exit, ExitReturn)
	}
	if sc.Tasks[1].Exit != ExitDelete || sc.Tasks[1].StackHint != 4096 || sc.Tasks[1].Iterations != 5 {
		t.Errorf("tasks[1] = %+v", sc.Tasks[1])
	}
	if sc.Tasks[2].KillAfterMS != 1000 {
		t.Errorf("tasks[2].kill_after_ms = %d, want 1000", sc.Tasks[2].KillAfterMS)
	}

	core := sc.CoreConfig()
	if core.Name != "badge" || core.Capacity != 4 || core.TickPeriodMS != 10 {
		t.Errorf("CoreConfig() = %+v", core)
	}
	if got := sc.FrameConfig(0).MaxFrames; got != 120 {
		t.Errorf("FrameConfig(0).MaxFrames = %d, want 120", got)
	}
	if got := sc.FrameConfig(7).MaxFrames; got != 7 {
		t.Errorf("FrameConfig(7).MaxFrames = %d, want 7", got)
	}
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	sc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if sc.Scheduler.Capacity != 16 || sc.Scheduler.TickPeriodMS != 1 || sc.Host.FPS != 60 {
		t.Fatalf("defaults = %+v", sc)
	}
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("scheduler:\n  capacitty: 4\n"))
	if err == nil {
		t.Fatal("Parse() accepted an unknown field")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte(`
scheduler:
  capacity: 0
  tick_period_ms: -1
host:
  min_elapsed_ms: 50
  max_elapsed_ms: 10
tasks:
  - name: bad
    period_ms: -5
    exit: explode
`))
	if err == nil {
		t.Fatal("Parse() accepted an invalid scenario")
	}

	msg := err.Error()
	for _, want := range []string{"capacity", "tick_period_ms", "elapsed clamp", "tasks[0] (bad): durations", `got "explode"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(sampleScenario), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sc.Scheduler.Name != "badge" {
		t.Fatalf("name = %q, want badge", sc.Scheduler.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of a missing file returned nil error")
	}
}
