package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics.
// The panic is recovered on the task's own stack and the task terminates.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The task's context (carries the scheduler and task handle)
	// - schedulerName: The name of the scheduler owning the task
	// - handle: The handle of the panicked task
	// - taskName: The task's name
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, schedulerName string, handle TaskHandle, taskName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic and its stack at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, schedulerName string, handle TaskHandle, taskName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("scheduler", schedulerName),
		F("handle", int(handle)),
		F("task", taskName),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from the driver context and must not block.
type Metrics interface {
	// RecordTaskCreated records a successful Create.
	RecordTaskCreated(schedulerName string)

	// RecordTaskRejected records a refused Create (e.g. "table_full").
	RecordTaskRejected(schedulerName string, reason string)

	// RecordTaskResume records how long a task ran before handing control back.
	RecordTaskResume(schedulerName string, taskName string, duration time.Duration)

	// RecordTaskTerminated records a task leaving the live set, with one of the
	// Exit* reasons.
	RecordTaskTerminated(schedulerName string, reason string)

	// RecordTaskPanic records that a task panicked.
	RecordTaskPanic(schedulerName string, panicInfo any)

	// RecordInvalidHandle records a Delete with a stale or out-of-range handle.
	RecordInvalidHandle(schedulerName string)

	// RecordAdvance records one tick: the elapsed time fed in, the number of
	// due tasks resumed and the wall time spent inside Advance.
	RecordAdvance(schedulerName string, elapsedMS int, due int, duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskCreated is a no-op.
func (m *NilMetrics) RecordTaskCreated(schedulerName string) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string) {
}

// RecordTaskResume is a no-op.
func (m *NilMetrics) RecordTaskResume(schedulerName string, taskName string, duration time.Duration) {
}

// RecordTaskTerminated is a no-op.
func (m *NilMetrics) RecordTaskTerminated(schedulerName string, reason string) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(schedulerName string, panicInfo any) {
}

// RecordInvalidHandle is a no-op.
func (m *NilMetrics) RecordInvalidHandle(schedulerName string) {
}

// RecordAdvance is a no-op.
func (m *NilMetrics) RecordAdvance(schedulerName string, elapsedMS int, due int, duration time.Duration) {
}

// =============================================================================
// ResumeObserver: hook for every completed resume
// =============================================================================

// ResumeObserver receives a record each time a resumed task hands control back
// to the driver. It runs in the driver context, between two resumes.
type ResumeObserver interface {
	ObserveResume(record ResumeRecord)
}

// ResumeObserverFunc adapts a function to ResumeObserver.
type ResumeObserverFunc func(record ResumeRecord)

func (f ResumeObserverFunc) ObserveResume(record ResumeRecord) { f(record) }

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

const (
	DefaultCapacity        = 16
	DefaultTickPeriodMS    = 1
	DefaultHistoryCapacity = 100
)

// SchedulerConfig holds configuration options for Scheduler.
// Zero fields fall back to defaults.
type SchedulerConfig struct {
	// Name labels logs and metrics. Defaults to "scheduler".
	Name string

	// ID uniquely identifies the instance. Defaults to a random UUID.
	ID string

	// Capacity is the fixed size of the task table. Defaults to 16.
	Capacity int

	// TickPeriodMS is the length of one Delay tick in milliseconds. Defaults to 1.
	TickPeriodMS int

	// HistoryCapacity bounds the in-memory resume history. Defaults to 100.
	HistoryCapacity int

	// Clock is used for driver-side Delay waits and timing. Defaults to SystemClock.
	Clock Clock

	// Logger defaults to a slog-backed logger.
	Logger Logger

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler defaults to DefaultPanicHandler using Logger.
	PanicHandler PanicHandler

	// ResumeObserver is optional.
	ResumeObserver ResumeObserver

	// ContextFactory builds execution contexts. Defaults to NewGoroutineFiber.
	ContextFactory ContextFactory
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		Name:            "scheduler",
		Capacity:        DefaultCapacity,
		TickPeriodMS:    DefaultTickPeriodMS,
		HistoryCapacity: DefaultHistoryCapacity,
		Clock:           SystemClock{},
		Logger:          logger,
		Metrics:         &NilMetrics{},
		PanicHandler:    &DefaultPanicHandler{Logger: logger},
		ContextFactory:  NewGoroutineFiber,
	}
}
