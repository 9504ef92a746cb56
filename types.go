package fiberrunner

import "github.com/Swind/go-fiber-runner/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the fiberrunner package for most use cases.

// Scheduler runs tasks cooperatively, one at a time
type Scheduler = core.Scheduler

// SchedulerConfig holds scheduler options
type SchedulerConfig = core.SchedulerConfig

// TaskFunc is a task entry point
type TaskFunc = core.TaskFunc

// TaskHandle identifies a task slot
type TaskHandle = core.TaskHandle

// TickType counts scheduler ticks
type TickType = core.TickType

// TaskInfo, SchedulerStats and ResumeRecord are observability snapshots
type (
	TaskInfo       = core.TaskInfo
	SchedulerStats = core.SchedulerStats
	ResumeRecord   = core.ResumeRecord
)

const (
	// NoTask is the null handle
	NoTask = core.NoTask

	// PortMaxDelay is the longest expressible delay
	PortMaxDelay = core.MaxDelay
)

// Sentinel errors
var (
	ErrTableFull          = core.ErrTableFull
	ErrNotInitialized     = core.ErrNotInitialized
	ErrAlreadyInitialized = core.ErrAlreadyInitialized
	ErrTornDown           = core.ErrTornDown
	ErrReentrantCall      = core.ErrReentrantCall
	ErrNilEntry           = core.ErrNilEntry
)

// NewScheduler creates a scheduler that is not yet initialized.
// This is re-exported for users who want several independent schedulers.
func NewScheduler(config *SchedulerConfig) *Scheduler {
	return core.NewScheduler(config)
}

// DefaultSchedulerConfig returns a config with default handlers
var DefaultSchedulerConfig = core.DefaultSchedulerConfig

// GetCurrentScheduler retrieves the running task's scheduler from context
var GetCurrentScheduler = core.GetCurrentScheduler
