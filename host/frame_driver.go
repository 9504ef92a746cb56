// Package host drives a scheduler from a frame loop, the way a browser or
// desktop emulator feeds wall-clock time into cooperative firmware tasks.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-fiber-runner/core"
)

// FrameConfig controls frame pacing.
type FrameConfig struct {
	// FPS is the target frame rate. Defaults to 60.
	FPS int

	// MinElapsedMS and MaxElapsedMS clamp the elapsed time fed to each tick,
	// so a stalled host does not release every delayed task at once.
	MinElapsedMS int
	MaxElapsedMS int

	// MaxFrames stops Run after that many frames. Zero runs until cancelled.
	MaxFrames uint64
}

// DefaultFrameConfig returns 60 fps with elapsed time clamped to [1, 100] ms.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		FPS:          60,
		MinElapsedMS: 1,
		MaxElapsedMS: 100,
	}
}

// Advancer is the per-tick entry point of a scheduler.
type Advancer interface {
	Advance(elapsedMS int) error
}

// FrameDriver calls a per-frame loop hook and then advances the scheduler,
// once per frame. All of its methods run in the driver context.
type FrameDriver struct {
	scheduler Advancer
	clock     core.Clock
	logger    core.Logger
	config    FrameConfig

	loop   func()
	last   time.Time
	frames uint64
}

// NewFrameDriver creates a frame driver for scheduler. Zero config fields
// fall back to DefaultFrameConfig; a nil clock uses core.SystemClock.
func NewFrameDriver(scheduler Advancer, clock core.Clock, logger core.Logger, config FrameConfig) *FrameDriver {
	def := DefaultFrameConfig()
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.MinElapsedMS <= 0 {
		config.MinElapsedMS = def.MinElapsedMS
	}
	if config.MaxElapsedMS <= 0 {
		config.MaxElapsedMS = def.MaxElapsedMS
	}
	if config.MaxElapsedMS < config.MinElapsedMS {
		config.MaxElapsedMS = config.MinElapsedMS
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}

	return &FrameDriver{
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		config:    config,
		last:      clock.Now(),
	}
}

// Config returns the effective frame configuration.
func (d *FrameDriver) Config() FrameConfig { return d.config }

// Frames returns the number of frames stepped so far.
func (d *FrameDriver) Frames() uint64 { return d.frames }

// FramePeriod is the target wall time of one frame.
func (d *FrameDriver) FramePeriod() time.Duration {
	return time.Second / time.Duration(d.config.FPS)
}

// Setup runs fn once in the driver context and restarts frame timing, so
// time spent in setup is not fed to the first tick.
func (d *FrameDriver) Setup(fn func()) {
	if fn != nil {
		fn()
	}
	d.last = d.clock.Now()
	d.logger.Info("setup complete, starting frame loop",
		core.F("fps", d.config.FPS),
	)
}

// SetLoop installs the hook run at the start of every frame, before the tick.
func (d *FrameDriver) SetLoop(fn func()) {
	d.loop = fn
}

// Step runs one frame: measure and clamp elapsed time, run the loop hook,
// then advance the scheduler.
func (d *FrameDriver) Step() error {
	now := d.clock.Now()
	elapsed := d.clampElapsed(now.Sub(d.last))
	d.last = now

	if d.loop != nil {
		d.loop()
	}

	if err := d.scheduler.Advance(elapsed); err != nil {
		return fmt.Errorf("frame %d: %w", d.frames+1, err)
	}
	d.frames++
	return nil
}

func (d *FrameDriver) clampElapsed(delta time.Duration) int {
	ms := int(delta.Milliseconds())
	if ms < d.config.MinElapsedMS {
		ms = d.config.MinElapsedMS
	}
	if ms > d.config.MaxElapsedMS {
		ms = d.config.MaxElapsedMS
	}
	return ms
}

// Run steps one frame per frame period until ctx is done, MaxFrames is
// reached, or a tick fails. It returns ctx.Err() on cancellation.
func (d *FrameDriver) Run(ctx context.Context) error {
	period := d.FramePeriod()

	for {
		if d.config.MaxFrames > 0 && d.frames >= d.config.MaxFrames {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := d.clock.Now()
		if err := d.Step(); err != nil {
			d.logger.Error("frame failed", core.F("frame", d.frames+1), core.F("error", err))
			return err
		}

		if spent := d.clock.Now().Sub(start); spent < period {
			d.clock.Sleep(period - spent)
		}
	}
}
