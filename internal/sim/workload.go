// Package sim turns scenario task descriptions into synthetic firmware tasks
// running on a scheduler.
package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	"github.com/Swind/go-fiber-runner/internal/config"
)

// TaskReport summarizes one scenario task after (or during) a run.
type TaskReport struct {
	Name       string
	Handle     core.TaskHandle // NoTask when creation was refused
	Iterations uint64
	Killed     bool
}

type simTask struct {
	cfg        config.TaskConfig
	handle     core.TaskHandle
	iterations atomic.Uint64
	killAt     time.Time
	killed     bool
}

// Workload owns the synthetic tasks of one scenario.
type Workload struct {
	scheduler *core.Scheduler
	clock     core.Clock
	logger    core.Logger
	tasks     []*simTask
	startedAt time.Time
}

// NewWorkload prepares tasks for s. Nothing is created until Setup.
func NewWorkload(s *core.Scheduler, clock core.Clock, logger core.Logger, tasks []config.TaskConfig) *Workload {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	w := &Workload{scheduler: s, clock: clock, logger: logger}
	for _, cfg := range tasks {
		w.tasks = append(w.tasks, &simTask{cfg: cfg})
	}
	return w
}

// Setup creates every task in scenario order. Creation failures (a full
// table) are logged and skipped; the number created is returned.
func (w *Workload) Setup() int {
	w.startedAt = w.clock.Now()
	created := 0
	for _, t := range w.tasks {
		h, err := w.scheduler.Create(w.body(t), nil, t.cfg.Name, t.cfg.StackHint)
		if err != nil {
			w.logger.Warn("scenario task not created",
				core.F("task", t.cfg.Name),
				core.F("error", err),
			)
			continue
		}
		t.handle = h
		if t.cfg.KillAfterMS > 0 {
			t.killAt = w.startedAt.Add(time.Duration(t.cfg.KillAfterMS) * time.Millisecond)
		}
		created++
	}
	return created
}

// Loop is the per-frame hook: it deletes tasks whose kill deadline passed.
// It runs in the driver context.
func (w *Workload) Loop() {
	now := w.clock.Now()
	for _, t := range w.tasks {
		if t.handle == core.NoTask || t.killed || t.killAt.IsZero() || now.Before(t.killAt) {
			continue
		}
		t.killed = true
		w.logger.Info("killing scenario task", core.F("task", t.cfg.Name), core.F("handle", int(t.handle)))
		w.scheduler.Delete(t.handle)
	}
}

func (w *Workload) body(t *simTask) core.TaskFunc {
	return func(ctx context.Context, arg any) {
		s := core.GetCurrentScheduler(ctx)
		cfg := t.cfg

		if cfg.StartDelayMS > 0 {
			s.Delay(s.MsToTicks(cfg.StartDelayMS))
		}
		for i := 0; cfg.Iterations == 0 || i < cfg.Iterations; i++ {
			if cfg.WorkMS > 0 {
				// Holding control without yielding is what firmware busy work does.
				w.clock.Sleep(time.Duration(cfg.WorkMS) * time.Millisecond)
			}
			t.iterations.Add(1)
			s.Delay(s.MsToTicks(cfg.PeriodMS))
		}

		if cfg.Exit == config.ExitDelete {
			s.Delete(core.NoTask)
		}
	}
}

// Reports returns per-task progress, in scenario order.
func (w *Workload) Reports() []TaskReport {
	out := make([]TaskReport, 0, len(w.tasks))
	for _, t := range w.tasks {
		out = append(out, TaskReport{
			Name:       t.cfg.Name,
			Handle:     t.handle,
			Iterations: t.iterations.Load(),
			Killed:     t.killed,
		})
	}
	return out
}
