package core

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs RTOS-style tasks cooperatively inside one logical thread of
// execution that is driven tick by tick by a host loop.
//
// The goroutine that calls Init and Advance is the driver context. Advance
// resumes every due task in creation order; a resumed task runs until it
// calls Delay, deletes itself, returns or panics, and only then does the next
// task (or the driver) continue. At most one of them runs at any instant.
//
// Lifecycle:
//
//	s := core.NewScheduler(cfg)
//	_ = s.Init()
//	h, err := s.Create(entry, arg, "display", 4096)
//	for each frame { _ = s.Advance(elapsedMS) }
//	_ = s.Teardown()
type Scheduler struct {
	id           string
	name         string
	tickPeriodMS int64

	clock        Clock
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	observer     ResumeObserver
	newContext   ContextFactory

	// Cancelled by Teardown; parent of every task context.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the fields below. It is never held across a context switch.
	mu          sync.Mutex
	table       *taskTable
	current     int // slot index of the running task, -1 for the driver
	initialized bool
	tornDown    bool
	advancing   bool
	ticks       uint64
	rejected    int64
	lastTickAt  time.Time

	history executionHistory
}

// NewScheduler creates a scheduler. Init must be called before anything else.
// A nil config uses DefaultSchedulerConfig.
func NewScheduler(config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}

	s := &Scheduler{
		id:           config.ID,
		name:         config.Name,
		tickPeriodMS: int64(config.TickPeriodMS),
		clock:        config.Clock,
		logger:       config.Logger,
		metrics:      config.Metrics,
		panicHandler: config.PanicHandler,
		observer:     config.ResumeObserver,
		newContext:   config.ContextFactory,
		current:      -1,
	}

	capacity := config.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s.table = newTaskTable(capacity)
	s.history = newExecutionHistory(config.HistoryCapacity)

	// Use defaults if not provided
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.name == "" {
		s.name = "scheduler"
	}
	if s.tickPeriodMS <= 0 {
		s.tickPeriodMS = DefaultTickPeriodMS
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	if s.newContext == nil {
		s.newContext = NewGoroutineFiber
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the unique scheduler ID.
func (s *Scheduler) ID() string { return s.id }

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Capacity returns the fixed size of the task table.
func (s *Scheduler) Capacity() int { return s.table.Cap() }

// TickPeriodMS returns the length of one Delay tick in milliseconds.
func (s *Scheduler) TickPeriodMS() int { return int(s.tickPeriodMS) }

// MsToTicks converts milliseconds to ticks, truncating.
func (s *Scheduler) MsToTicks(ms int) TickType {
	if ms <= 0 {
		return 0
	}
	return TickType(int64(ms) / s.tickPeriodMS)
}

// Init sets up the driver context. It must precede every other call.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown {
		return ErrTornDown
	}
	if s.initialized {
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.current = -1

	s.logger.Info("scheduler initialized",
		F("scheduler", s.name),
		F("id", s.id),
		F("capacity", s.table.Cap()),
		F("tick_period_ms", s.tickPeriodMS),
	)
	return nil
}

func (s *Scheduler) usableLocked() error {
	if s.tornDown {
		return ErrTornDown
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// =============================================================================
// Task Control API
// =============================================================================

// Create registers a task in the next free slot. The task does not run until
// the driver resumes it; its first resumption calls entry(ctx, arg) on a fresh
// stack.
//
// stackHint is recorded for diagnostics only. An empty name becomes "task" and
// names longer than 31 bytes are truncated.
//
// ErrTableFull is returned, with nothing allocated, when every slot is taken.
func (s *Scheduler) Create(entry TaskFunc, arg any, name string, stackHint uint32) (TaskHandle, error) {
	if entry == nil {
		return NoTask, ErrNilEntry
	}
	name = normalizeTaskName(name)

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return NoTask, err
	}
	if s.table.Full() {
		s.rejected++
		capacity := s.table.Cap()
		s.mu.Unlock()

		s.logger.Warn("task table full",
			F("scheduler", s.name),
			F("task", name),
			F("capacity", capacity),
		)
		s.metrics.RecordTaskRejected(s.name, "table_full")
		return NoTask, ErrTableFull
	}

	rec := &taskRecord{
		entry:     entry,
		arg:       arg,
		name:      name,
		stackHint: stackHint,
		active:    true,
		createdAt: s.clock.Now(),
	}
	rec.ctx = s.newContext(func() { s.runTask(rec) })
	handle := s.table.Append(rec)
	s.mu.Unlock()

	s.logger.Info("task created",
		F("scheduler", s.name),
		F("task", name),
		F("handle", int(handle)),
		F("stack_hint", stackHint),
	)
	s.metrics.RecordTaskCreated(s.name)
	return handle, nil
}

// Delete marks a task inactive so it is never resumed again.
//
// NoTask deletes the calling task. When the target is the calling task,
// control goes back to the driver and Delete does not return. Deleting any
// other task only flips its active flag; its execution context is released
// by the driver. Stale or out-of-range handles are ignored.
func (s *Scheduler) Delete(handle TaskHandle) {
	s.mu.Lock()
	if s.usableLocked() != nil {
		s.mu.Unlock()
		return
	}

	target := handle
	if target == NoTask {
		if s.current < 0 {
			// Self-delete from the driver has nothing to delete.
			s.mu.Unlock()
			return
		}
		target = handleForIndex(s.current)
	}

	rec, ok := s.table.Lookup(target)
	if !ok || !rec.active {
		s.mu.Unlock()
		s.logger.Debug("delete of unknown or inactive task ignored",
			F("scheduler", s.name),
			F("handle", int(handle)),
		)
		s.metrics.RecordInvalidHandle(s.name)
		return
	}

	rec.active = false
	rec.exitReason = ExitDeleted
	self := target.index() == s.current
	fromDriver := s.current < 0
	s.mu.Unlock()

	s.logger.Info("task deleted",
		F("scheduler", s.name),
		F("task", rec.name),
		F("handle", int(target)),
		F("self", self),
	)

	if self {
		// Terminal for the caller; the driver sees OutcomeCompleted.
		rec.ctx.Exit()
		return
	}

	s.metrics.RecordTaskTerminated(s.name, ExitDeleted)
	if fromDriver {
		s.release(rec)
	}
}

// Delay suspends the calling task for ticks * TickPeriodMS milliseconds of
// elapsed time, as fed to Advance.
//
// Called from the driver context (no task current) it instead blocks the
// caller on the clock for the same duration and then returns.
func (s *Scheduler) Delay(ticks TickType) {
	ms := int64(ticks) * s.tickPeriodMS

	s.mu.Lock()
	idx := s.current
	if idx < 0 {
		s.mu.Unlock()
		if ms > 0 {
			s.clock.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return
	}
	rec := s.table.At(idx)
	rec.remainingMS = ms
	s.mu.Unlock()

	rec.ctx.Suspend()
}

// CurrentHandle returns the handle of the running task, or NoTask when called
// from the driver context.
func (s *Scheduler) CurrentHandle() TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 {
		return NoTask
	}
	return handleForIndex(s.current)
}

// =============================================================================
// Driver Loop Integration
// =============================================================================

// Advance is the per-tick entry point. It subtracts elapsedMS from every live
// task's remaining delay (clamping at zero; overshoot is discarded, not
// carried into the next delay) and resumes each task that is due, in
// ascending creation order. Tasks created during the tick are considered in
// the same tick.
//
// Advance must be called from the driver context only; it returns
// ErrReentrantCall when called from a task or while another Advance runs.
// A task that never yields blocks Advance forever.
func (s *Scheduler) Advance(elapsedMS int) error {
	if elapsedMS < 0 {
		elapsedMS = 0
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.advancing || s.current >= 0 {
		s.mu.Unlock()
		return ErrReentrantCall
	}
	s.advancing = true
	s.ticks++
	tick := s.ticks
	start := s.clock.Now()
	s.lastTickAt = start
	s.mu.Unlock()

	due := 0
	for i := 0; ; i++ {
		s.mu.Lock()
		if i >= s.table.Len() {
			s.mu.Unlock()
			break
		}
		rec := s.table.At(i)
		if !rec.active {
			s.mu.Unlock()
			s.release(rec)
			continue
		}

		rec.remainingMS -= int64(elapsedMS)
		if rec.remainingMS > 0 {
			s.mu.Unlock()
			continue
		}
		rec.remainingMS = 0

		s.current = i
		first := !rec.started
		rec.started = true
		rec.resumes++
		s.mu.Unlock()

		due++
		s.resume(rec, tick, first)
	}

	s.mu.Lock()
	s.advancing = false
	s.mu.Unlock()

	s.metrics.RecordAdvance(s.name, elapsedMS, due, s.clock.Now().Sub(start))
	return nil
}

// resume hands control to rec and blocks until it hands it back.
func (s *Scheduler) resume(rec *taskRecord, tick uint64, first bool) {
	startedAt := s.clock.Now()
	out := rec.ctx.Resume()
	finishedAt := s.clock.Now()

	s.mu.Lock()
	s.current = -1
	rec.lastResumeAt = startedAt
	if out == OutcomeCompleted {
		rec.active = false
		if rec.exitReason == "" {
			rec.exitReason = ExitReturned
		}
	}
	reason := rec.exitReason
	s.mu.Unlock()

	record := ResumeRecord{
		SchedulerID:   s.id,
		SchedulerName: s.name,
		Tick:          tick,
		Handle:        rec.handle,
		Name:          rec.name,
		First:         first,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Duration:      finishedAt.Sub(startedAt),
		Outcome:       out,
	}
	if out == OutcomeCompleted {
		record.ExitReason = reason
	}

	s.history.Add(record)
	if s.observer != nil {
		s.observer.ObserveResume(record)
	}
	s.metrics.RecordTaskResume(s.name, rec.name, record.Duration)

	if out == OutcomeCompleted {
		s.release(rec)
		s.logger.Info("task terminated",
			F("scheduler", s.name),
			F("task", rec.name),
			F("handle", int(rec.handle)),
			F("reason", reason),
		)
		s.metrics.RecordTaskTerminated(s.name, reason)
	}
}

// runTask is the body of every task's execution context.
func (s *Scheduler) runTask(rec *taskRecord) {
	ctx := context.WithValue(s.ctx, schedulerKey, s)
	ctx = context.WithValue(ctx, taskHandleKey, rec.handle)

	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				s.handleTaskPanic(ctx, rec, r, debug.Stack())
			}
		}()
		rec.entry(ctx, rec.arg)
	}()

	s.mu.Lock()
	rec.active = false
	if panicked {
		rec.exitReason = ExitPanicked
	} else if rec.exitReason == "" {
		rec.exitReason = ExitReturned
	}
	s.mu.Unlock()
}

func (s *Scheduler) handleTaskPanic(ctx context.Context, rec *taskRecord, panicInfo any, stack []byte) {
	s.metrics.RecordTaskPanic(s.name, panicInfo)

	// A misbehaving handler must not take the task goroutine down with it.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handler panicked",
				F("scheduler", s.name),
				F("task", rec.name),
				F("panic", r),
			)
		}
	}()
	s.panicHandler.HandlePanic(ctx, s.name, rec.handle, rec.name, panicInfo, stack)
}

// release closes rec's execution context once. Driver context only.
func (s *Scheduler) release(rec *taskRecord) {
	s.mu.Lock()
	if rec.released {
		s.mu.Unlock()
		return
	}
	rec.released = true
	s.mu.Unlock()

	rec.ctx.Close()
}

// Teardown releases every task's execution context, unwinding suspended task
// stacks, and cancels the context handed to task entries. Later Create and
// Advance calls return ErrTornDown. Calling it again is a no-op.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	if s.current >= 0 || s.advancing {
		s.mu.Unlock()
		return ErrReentrantCall
	}
	if s.tornDown {
		s.mu.Unlock()
		return nil
	}
	s.tornDown = true

	records := make([]*taskRecord, 0, s.table.Len())
	live := 0
	for i := 0; i < s.table.Len(); i++ {
		rec := s.table.At(i)
		if rec.active {
			rec.active = false
			rec.exitReason = ExitTornDown
			live++
		}
		records = append(records, rec)
	}
	s.mu.Unlock()

	for _, rec := range records {
		s.release(rec)
	}
	s.cancel()

	s.logger.Info("scheduler torn down",
		F("scheduler", s.name),
		F("slots", len(records)),
		F("live", live),
	)
	return nil
}

// =============================================================================
// Observability
// =============================================================================

// Count returns the number of assigned slots, including terminated tasks.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Len()
}

// ActiveCount returns the number of live tasks.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.ActiveCount()
}

// TaskInfo returns a snapshot of one task slot.
func (s *Scheduler) TaskInfo(handle TaskHandle) (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table.Lookup(handle)
	if !ok {
		return TaskInfo{}, false
	}
	return s.infoLocked(rec), true
}

// Tasks returns a snapshot of every assigned slot in creation order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, s.table.Len())
	for i := 0; i < s.table.Len(); i++ {
		out = append(out, s.infoLocked(s.table.At(i)))
	}
	return out
}

func (s *Scheduler) infoLocked(rec *taskRecord) TaskInfo {
	return TaskInfo{
		Handle:           rec.handle,
		Name:             rec.name,
		State:            s.stateLocked(rec),
		Active:           rec.active,
		Started:          rec.started,
		RemainingDelayMS: rec.remainingMS,
		StackHint:        rec.stackHint,
		Resumes:          rec.resumes,
		CreatedAt:        rec.createdAt,
		LastResumeAt:     rec.lastResumeAt,
		ExitReason:       rec.exitReason,
	}
}

func (s *Scheduler) stateLocked(rec *taskRecord) TaskState {
	switch {
	case !rec.active:
		return TaskStateTerminated
	case s.current >= 0 && rec.handle == handleForIndex(s.current):
		return TaskStateRunning
	case !rec.started:
		return TaskStateCreated
	case rec.remainingMS > 0:
		return TaskStateWaiting
	default:
		return TaskStateReady
	}
}

// Stats returns a snapshot of scheduler state.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SchedulerStats{
		ID:         s.id,
		Name:       s.name,
		Capacity:   s.table.Cap(),
		Slots:      s.table.Len(),
		Rejected:   s.rejected,
		Ticks:      s.ticks,
		LastTickAt: s.lastTickAt,
		TornDown:   s.tornDown,
	}
	if s.current >= 0 {
		stats.Current = handleForIndex(s.current)
	}
	for i := 0; i < s.table.Len(); i++ {
		rec := s.table.At(i)
		switch {
		case !rec.active:
			stats.Terminated++
		default:
			stats.Active++
			if rec.remainingMS > 0 {
				stats.Waiting++
			}
		}
	}
	return stats
}

// History returns up to limit recent resume records, newest first.
// limit <= 0 returns everything retained.
func (s *Scheduler) History(limit int) []ResumeRecord {
	return s.history.Recent(limit)
}

// LastResume returns the most recent resume record.
func (s *Scheduler) LastResume() (ResumeRecord, bool) {
	return s.history.Last()
}
