// Package config loads fibersim scenarios: a scheduler, its frame loop and
// the synthetic firmware tasks to run on it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	"github.com/Swind/go-fiber-runner/host"
	"gopkg.in/yaml.v3"
)

// Task exit modes after the last iteration.
const (
	ExitReturn = "return"
	ExitDelete = "delete"
)

// Scenario is the top-level YAML document.
type Scenario struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Host      HostConfig      `yaml:"host"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Tasks     []TaskConfig    `yaml:"tasks"`
}

// SchedulerConfig mirrors core.SchedulerConfig's tunables.
type SchedulerConfig struct {
	Name            string `yaml:"name"`
	Capacity        int    `yaml:"capacity"`
	TickPeriodMS    int    `yaml:"tick_period_ms"`
	HistoryCapacity int    `yaml:"history_capacity"`
}

// HostConfig mirrors host.FrameConfig.
type HostConfig struct {
	FPS          int    `yaml:"fps"`
	MinElapsedMS int    `yaml:"min_elapsed_ms"`
	MaxElapsedMS int    `yaml:"max_elapsed_ms"`
	MaxFrames    uint64 `yaml:"max_frames"`
	// Realtime paces frames on the wall clock; false runs frames back to back
	// on a simulated clock.
	Realtime bool `yaml:"realtime"`
}

// MetricsConfig controls the debug HTTP surface.
type MetricsConfig struct {
	Addr         string        `yaml:"addr"` // empty disables the HTTP server
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HistoryConfig controls persistent resume history.
type HistoryConfig struct {
	DB string `yaml:"db"` // SQLite path; empty disables persistence
}

// TaskConfig describes one synthetic task. Each iteration busy-works for
// WorkMS, then delays for PeriodMS.
type TaskConfig struct {
	Name         string `yaml:"name"`
	PeriodMS     int    `yaml:"period_ms"`
	Iterations   int    `yaml:"iterations"` // 0 runs forever
	WorkMS       int    `yaml:"work_ms"`
	StackHint    uint32 `yaml:"stack_hint"`
	StartDelayMS int    `yaml:"start_delay_ms"`
	Exit         string `yaml:"exit"` // "return" (default) or "delete"
	// KillAfterMS makes the driver delete the task once that much simulated
	// time has passed. 0 disables.
	KillAfterMS int `yaml:"kill_after_ms"`
}

// Default returns a scenario with every default applied and no tasks.
func Default() *Scenario {
	frame := host.DefaultFrameConfig()
	return &Scenario{
		Scheduler: SchedulerConfig{
			Name:            "fibersim",
			Capacity:        core.DefaultCapacity,
			TickPeriodMS:    core.DefaultTickPeriodMS,
			HistoryCapacity: core.DefaultHistoryCapacity,
		},
		Host: HostConfig{
			FPS:          frame.FPS,
			MinElapsedMS: frame.MinElapsedMS,
			MaxElapsedMS: frame.MaxElapsedMS,
		},
		Metrics: MetricsConfig{
			PollInterval: time.Second,
		},
	}
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario over the defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	sc := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Scenario) applyDefaults() {
	def := Default()
	if s.Scheduler.Name == "" {
		s.Scheduler.Name = def.Scheduler.Name
	}
	if s.Scheduler.HistoryCapacity == 0 {
		s.Scheduler.HistoryCapacity = def.Scheduler.HistoryCapacity
	}
	if s.Metrics.PollInterval == 0 {
		s.Metrics.PollInterval = def.Metrics.PollInterval
	}
	for i := range s.Tasks {
		if s.Tasks[i].Exit == "" {
			s.Tasks[i].Exit = ExitReturn
		}
	}
}

// Validate reports every problem found, joined.
func (s *Scenario) Validate() error {
	var errs []error

	if s.Scheduler.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.capacity must be positive, got %d", s.Scheduler.Capacity))
	}
	if s.Scheduler.TickPeriodMS <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick_period_ms must be positive, got %d", s.Scheduler.TickPeriodMS))
	}
	if s.Scheduler.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("scheduler.history_capacity must not be negative"))
	}
	if s.Host.FPS <= 0 {
		errs = append(errs, fmt.Errorf("host.fps must be positive, got %d", s.Host.FPS))
	}
	if s.Host.MinElapsedMS <= 0 || s.Host.MaxElapsedMS < s.Host.MinElapsedMS {
		errs = append(errs, fmt.Errorf("host elapsed clamp [%d, %d] is invalid", s.Host.MinElapsedMS, s.Host.MaxElapsedMS))
	}
	if s.Metrics.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("metrics.poll_interval must not be negative"))
	}

	for i, t := range s.Tasks {
		prefix := fmt.Sprintf("tasks[%d]", i)
		if t.Name != "" {
			prefix = fmt.Sprintf("tasks[%d] (%s)", i, t.Name)
		}
		if t.PeriodMS < 0 || t.Iterations < 0 || t.WorkMS < 0 || t.StartDelayMS < 0 || t.KillAfterMS < 0 {
			errs = append(errs, fmt.Errorf("%s: durations and iterations must not be negative", prefix))
		}
		switch t.Exit {
		case "", ExitReturn, ExitDelete:
		default:
			errs = append(errs, fmt.Errorf("%s: exit must be %q or %q, got %q", prefix, ExitReturn, ExitDelete, t.Exit))
		}
	}

	return errors.Join(errs...)
}

// CoreConfig returns the scheduler config for this scenario. Handlers are
// left nil for the caller to fill.
func (s *Scenario) CoreConfig() *core.SchedulerConfig {
	return &core.SchedulerConfig{
		Name:            s.Scheduler.Name,
		Capacity:        s.Scheduler.Capacity,
		TickPeriodMS:    s.Scheduler.TickPeriodMS,
		HistoryCapacity: s.Scheduler.HistoryCapacity,
	}
}

// FrameConfig returns the host frame config for this scenario.
// maxFrames overrides host.max_frames when positive.
func (s *Scenario) FrameConfig(maxFrames uint64) host.FrameConfig {
	cfg := host.FrameConfig{
		FPS:          s.Host.FPS,
		MinElapsedMS: s.Host.MinElapsedMS,
		MaxElapsedMS: s.Host.MaxElapsedMS,
		MaxFrames:    s.Host.MaxFrames,
	}
	if maxFrames > 0 {
		cfg.MaxFrames = maxFrames
	}
	return cfg
}
