package core

import "runtime"

// Outcome is the result of resuming an ExecutionContext.
type Outcome int

const (
	// OutcomeSuspended: the context yielded and may be resumed again.
	OutcomeSuspended Outcome = iota

	// OutcomeCompleted: the context finished (its body returned or it exited).
	// A completed context is never resumed again.
	OutcomeCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuspended:
		return "suspended"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// =============================================================================
// ExecutionContext: resumable unit of execution with its own call stack
// =============================================================================

// ExecutionContext is a resumable unit of execution with its own stack.
//
// Resume and Close are called by the driver. Suspend and Exit are called from
// inside the context's own body and transfer control back to whoever called
// Resume. At any instant either the driver or exactly one context is running.
type ExecutionContext interface {
	// Resume runs the context until it suspends or completes.
	// The first call starts the body from the top.
	Resume() Outcome

	// Suspend parks the calling context and returns control to the driver.
	// It returns when the driver resumes the context again.
	Suspend()

	// Exit terminates the calling context. It never returns; Resume reports
	// OutcomeCompleted to the driver.
	Exit()

	// Close releases the context. A parked context is unwound (deferred calls
	// on its stack run) before Close returns. Closing a completed or never
	// started context only marks it done.
	Close()
}

// ContextFactory creates an ExecutionContext that runs body on first resume.
type ContextFactory func(body func()) ExecutionContext

// =============================================================================
// GoroutineFiber: goroutine-backed ExecutionContext
// =============================================================================

type fiberState int

const (
	fiberNew fiberState = iota
	fiberRunning
	fiberParked
	fiberDone
)

// GoroutineFiber implements ExecutionContext on a dedicated goroutine.
//
// Control is handed over through unbuffered channels, so the driver and the
// fiber never run at the same time. The goroutine is started lazily on the
// first Resume.
type GoroutineFiber struct {
	body func()

	// wake carries true to continue and false to unwind a parked fiber.
	wake   chan bool
	park   chan Outcome
	exited chan struct{}

	// state is only touched by the driver side.
	state fiberState

	// unwound is only touched by the fiber goroutine.
	unwound bool
}

var _ ExecutionContext = (*GoroutineFiber)(nil)

// NewGoroutineFiber creates a fiber running body. It satisfies ContextFactory.
func NewGoroutineFiber(body func()) ExecutionContext {
	return &GoroutineFiber{
		body:   body,
		wake:   make(chan bool),
		park:   make(chan Outcome),
		exited: make(chan struct{}),
	}
}

// Resume starts or continues the fiber and blocks until it parks or finishes.
func (f *GoroutineFiber) Resume() Outcome {
	switch f.state {
	case fiberDone:
		return OutcomeCompleted
	case fiberRunning:
		panic("fiber: resume of a running context")
	case fiberNew:
		f.state = fiberRunning
		go f.run()
	case fiberParked:
		f.state = fiberRunning
		f.wake <- true
	}

	out := <-f.park
	if out == OutcomeCompleted {
		f.state = fiberDone
	} else {
		f.state = fiberParked
	}
	return out
}

// Suspend parks the fiber. Must be called from the fiber's own goroutine.
func (f *GoroutineFiber) Suspend() {
	f.park <- OutcomeSuspended
	if !<-f.wake {
		f.unwound = true
		runtime.Goexit()
	}
}

// Exit ends the fiber. Must be called from the fiber's own goroutine.
func (f *GoroutineFiber) Exit() {
	runtime.Goexit()
}

// Close releases the fiber, unwinding its goroutine if it is parked.
func (f *GoroutineFiber) Close() {
	switch f.state {
	case fiberNew:
		f.state = fiberDone
	case fiberParked:
		f.state = fiberDone
		f.wake <- false
		<-f.exited
	}
}

func (f *GoroutineFiber) run() {
	defer func() {
		if f.unwound {
			close(f.exited)
			return
		}
		f.park <- OutcomeCompleted
	}()
	f.body()
}
