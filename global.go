package fiberrunner

import (
	"sync"

	"github.com/Swind/go-fiber-runner/core"
)

var (
	globalScheduler *core.Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler creates and initializes the global scheduler.
// A nil config uses core.DefaultSchedulerConfig. Calling it again while a
// global scheduler exists is a no-op.
func InitGlobalScheduler(config *SchedulerConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return nil // Already initialized
	}

	if config == nil {
		config = core.DefaultSchedulerConfig()
		config.Name = "global"
	}
	s := core.NewScheduler(config)
	if err := s.Init(); err != nil {
		return err
	}
	globalScheduler = s
	return nil
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *core.Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("GlobalScheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler tears down the global scheduler, unwinding every
// suspended task. It must be called from the driver context.
func ShutdownGlobalScheduler() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		return nil
	}
	if err := globalScheduler.Teardown(); err != nil {
		return err
	}
	globalScheduler = nil
	return nil
}

// =============================================================================
// RTOS-named helpers over the global scheduler
// =============================================================================

// TaskCreate creates a task on the global scheduler. stackHint and priority
// are accepted for source compatibility with ported firmware; stackHint is
// recorded for diagnostics and priority is ignored.
func TaskCreate(entry TaskFunc, name string, stackHint uint32, arg any, priority int) (TaskHandle, error) {
	return GetGlobalScheduler().Create(entry, arg, name, stackHint)
}

// TaskDelete deletes a task. NoTask deletes the calling task, in which case
// TaskDelete does not return.
func TaskDelete(handle TaskHandle) {
	GetGlobalScheduler().Delete(handle)
}

// TaskDelay suspends the calling task for ticks.
func TaskDelay(ticks TickType) {
	GetGlobalScheduler().Delay(ticks)
}

// TaskGetCurrentHandle returns the running task's handle, or NoTask.
func TaskGetCurrentHandle() TaskHandle {
	return GetGlobalScheduler().CurrentHandle()
}

// RunBackgroundTasks advances the global scheduler by elapsedMS. Call it
// once per host frame.
func RunBackgroundTasks(elapsedMS int) error {
	return GetGlobalScheduler().Advance(elapsedMS)
}

// MsToTicks converts milliseconds to ticks of the global scheduler.
func MsToTicks(ms int) TickType {
	return GetGlobalScheduler().MsToTicks(ms)
}
