package core

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu            sync.Mutex
	calls         []PanicCall
	onPanicCalled func(ctx context.Context, handle TaskHandle, panicInfo any)
}

type PanicCall struct {
	SchedulerName string
	Handle        TaskHandle
	TaskName      string
	PanicInfo     any
	Stack         []byte
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{
		calls: make([]PanicCall, 0),
	}
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, schedulerName string, handle TaskHandle, taskName string, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, PanicCall{
		SchedulerName: schedulerName,
		Handle:        handle,
		TaskName:      taskName,
		PanicInfo:     panicInfo,
		Stack:         stackTrace,
	})

	if h.onPanicCalled != nil {
		h.onPanicCalled(ctx, handle, panicInfo)
	}
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PanicCall(nil), h.calls...)
}

func (h *TestPanicHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler writing JSON logs into a buffer
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	handler := &DefaultPanicHandler{Logger: logger}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-scheduler", 3, "blinker", "test panic", []byte("stack trace"))

	// Then: One error record carries the task identity and the panic value
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" || entry["msg"] != "task panicked" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["task"] != "blinker" || entry["panic"] != "test panic" || entry["handle"] != float64(3) {
		t.Fatalf("entry fields = %v", entry)
	}
}

func TestDefaultPanicHandler_NilLogger(t *testing.T) {
	// A nil Logger falls back to the default logger instead of crashing.
	handler := &DefaultPanicHandler{}
	handler.HandlePanic(context.Background(), "s", 1, "t", "boom", nil)
}

// TestPanicHandler_HandlerPanicIsContained verifies a panicking handler does not kill the scheduler
func TestPanicHandler_HandlerPanicIsContained(t *testing.T) {
	handler := NewTestPanicHandler()
	handler.onPanicCalled = func(ctx context.Context, handle TaskHandle, panicInfo any) {
		panic("handler exploded")
	}
	s, _ := newTestScheduler(t, func(cfg *SchedulerConfig) { cfg.PanicHandler = handler })

	h := mustCreate(t, s, func(ctx context.Context, arg any) { panic("task exploded") }, "bad")
	mustAdvance(t, s, 1)

	if handler.CallCount() != 1 {
		t.Fatalf("CallCount() = %d, want 1", handler.CallCount())
	}
	info, _ := s.TaskInfo(h)
	if info.ExitReason != ExitPanicked {
		t.Fatalf("ExitReason = %q, want %q", info.ExitReason, ExitPanicked)
	}
	if len(handler.GetCalls()[0].Stack) == 0 {
		t.Fatal("panic handler received an empty stack trace")
	}
}

// =============================================================================
// Metrics
// =============================================================================

func TestNilMetrics(t *testing.T) {
	// NilMetrics must accept every call without side effects.
	var m Metrics = &NilMetrics{}
	m.RecordTaskCreated("s")
	m.RecordTaskRejected("s", "table_full")
	m.RecordTaskResume("s", "t", time.Millisecond)
	m.RecordTaskTerminated("s", ExitReturned)
	m.RecordTaskPanic("s", "boom")
	m.RecordInvalidHandle("s")
	m.RecordAdvance("s", 16, 2, time.Millisecond)
}

// TestMetrics_RecordedPerOperation verifies which operations reach the Metrics sink
func TestMetrics_RecordedPerOperation(t *testing.T) {
	metrics := newRecordingMetrics()
	s, _ := newTestScheduler(t, func(cfg *SchedulerConfig) { cfg.Metrics = metrics })

	mustCreate(t, s, func(ctx context.Context, arg any) {}, "a")
	mustCreate(t, s, func(ctx context.Context, arg any) { s.Delay(5) }, "b")
	mustAdvance(t, s, 1)
	mustAdvance(t, s, 1)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.created != 2 {
		t.Errorf("created = %d, want 2", metrics.created)
	}
	if metrics.resumes != 2 {
		t.Errorf("resumes = %d, want 2", metrics.resumes)
	}
	if metrics.advances != 2 {
		t.Errorf("advances = %d, want 2", metrics.advances)
	}
	if metrics.due != 2 {
		t.Errorf("due = %d, want 2", metrics.due)
	}
	if metrics.terminated[ExitReturned] != 1 {
		t.Errorf("terminated[returned] = %d, want 1", metrics.terminated[ExitReturned])
	}
}

// =============================================================================
// Logger
// =============================================================================

func TestSlogLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Debug("hidden", F("k", 1))
	logger.Info("task created", F("task", "blinker"), F("handle", 2))
	logger.Warn("task table full", F("capacity", 16))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written below Info level: %q", out)
	}
	for _, want := range []string{"level=INFO", "task=blinker", "handle=2", "level=WARN", "capacity=16"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NewNoOpLogger()
	l.Debug("x")
	l.Info("x", F("a", 1))
	l.Warn("x")
	l.Error("x")
}

// =============================================================================
// Config
// =============================================================================

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()

	if cfg.Capacity != 16 {
		t.Errorf("Capacity = %d, want 16", cfg.Capacity)
	}
	if cfg.TickPeriodMS != 1 {
		t.Errorf("TickPeriodMS = %d, want 1", cfg.TickPeriodMS)
	}
	if cfg.Logger == nil || cfg.Metrics == nil || cfg.PanicHandler == nil || cfg.ContextFactory == nil || cfg.Clock == nil {
		t.Errorf("DefaultSchedulerConfig left a handler nil: %+v", cfg)
	}
}

// TestSchedulerConfig_ContextFactory verifies a custom factory is used for every task
func TestSchedulerConfig_ContextFactory(t *testing.T) {
	built := 0
	s, _ := newTestScheduler(t, func(cfg *SchedulerConfig) {
		cfg.ContextFactory = func(body func()) ExecutionContext {
			built++
			return NewGoroutineFiber(body)
		}
	})

	mustCreate(t, s, func(ctx context.Context, arg any) {}, "a")
	mustCreate(t, s, func(ctx context.Context, arg any) {}, "b")

	if built != 2 {
		t.Fatalf("factory calls = %d, want 2", built)
	}
}

func TestResumeObserverFunc(t *testing.T) {
	var got ResumeRecord
	var o ResumeObserver = ResumeObserverFunc(func(r ResumeRecord) { got = r })

	o.ObserveResume(ResumeRecord{Name: "x", Tick: 7})

	if got.Name != "x" || got.Tick != 7 {
		t.Fatalf("observer got %+v", got)
	}
}
