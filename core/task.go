package core

import (
	"context"
	"strconv"
	"time"
)

// TaskFunc is a task entry point. It is called once, on the task's own stack,
// the first time the scheduler resumes the task. Returning from it terminates
// the task.
type TaskFunc func(ctx context.Context, arg any)

// TaskHandle identifies a task slot. Handles are 1-based creation indices;
// NoTask (zero) means "no task" or "the driver context".
type TaskHandle int

// NoTask is the null handle.
const NoTask TaskHandle = 0

func handleForIndex(idx int) TaskHandle {
	return TaskHandle(idx + 1)
}

func (h TaskHandle) index() int {
	return int(h) - 1
}

// IsZero reports whether h is NoTask.
func (h TaskHandle) IsZero() bool {
	return h == NoTask
}

func (h TaskHandle) String() string {
	if h == NoTask {
		return "driver"
	}
	return "task#" + strconv.Itoa(int(h))
}

// TickType counts scheduler ticks for Delay.
type TickType uint32

// MaxDelay is the largest delay expressible in ticks.
const MaxDelay TickType = 0xFFFFFFFF

const (
	defaultTaskName = "task"
	maxTaskNameLen  = 31
)

func normalizeTaskName(name string) string {
	if name == "" {
		return defaultTaskName
	}
	if len(name) > maxTaskNameLen {
		return name[:maxTaskNameLen]
	}
	return name
}

// Reasons recorded when a task terminates.
const (
	ExitReturned = "returned"
	ExitDeleted  = "deleted"
	ExitPanicked = "panicked"
	ExitTornDown = "torn_down"
)

// taskRecord is one slot of the task table.
type taskRecord struct {
	handle    TaskHandle
	ctx       ExecutionContext
	entry     TaskFunc
	arg       any
	name      string
	stackHint uint32

	active      bool
	started     bool
	remainingMS int64

	// released is set once ctx has been closed.
	released bool

	resumes      uint64
	createdAt    time.Time
	lastResumeAt time.Time
	exitReason   string
}

// =============================================================================
// Context Helper
// =============================================================================

type schedulerKeyType struct{}
type taskHandleKeyType struct{}

var (
	schedulerKey  schedulerKeyType
	taskHandleKey taskHandleKeyType
)

// GetCurrentScheduler returns the scheduler running the task that owns ctx,
// or nil when ctx did not come from a task entry.
func GetCurrentScheduler(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

// GetCurrentTaskHandle returns the handle of the task that owns ctx, or NoTask.
func GetCurrentTaskHandle(ctx context.Context) TaskHandle {
	if v := ctx.Value(taskHandleKey); v != nil {
		return v.(TaskHandle)
	}
	return NoTask
}
