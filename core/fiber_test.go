package core

import "testing"

// TestGoroutineFiber_SuspendAndResume verifies control alternates between driver and fiber
// Given: A fiber whose body appends steps around two Suspend calls
// When: The driver resumes it three times
// Then: Each resume runs exactly one segment and the last reports completion
func TestGoroutineFiber_SuspendAndResume(t *testing.T) {
	var steps []string
	var f ExecutionContext
	f = NewGoroutineFiber(func() {
		steps = append(steps, "a")
		f.Suspend()
		steps = append(steps, "b")
		f.Suspend()
		steps = append(steps, "c")
	})

	if out := f.Resume(); out != OutcomeSuspended {
		t.Fatalf("first Resume = %v, want suspended", out)
	}
	if len(steps) != 1 || steps[0] != "a" {
		t.Fatalf("steps after first resume = %v, want [a]", steps)
	}

	if out := f.Resume(); out != OutcomeSuspended {
		t.Fatalf("second Resume = %v, want suspended", out)
	}
	if out := f.Resume(); out != OutcomeCompleted {
		t.Fatalf("third Resume = %v, want completed", out)
	}

	want := []string{"a", "b", "c"}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", steps, want)
		}
	}

	// Resuming a finished fiber keeps reporting completion.
	if out := f.Resume(); out != OutcomeCompleted {
		t.Fatalf("Resume after completion = %v, want completed", out)
	}
}

// TestGoroutineFiber_Exit verifies Exit ends the fiber without running the rest of the body
// Given: A fiber that calls Exit halfway through
// When: The driver resumes it
// Then: Resume reports completion, deferred calls ran and code after Exit did not
func TestGoroutineFiber_Exit(t *testing.T) {
	deferred := false
	after := false
	var f ExecutionContext
	f = NewGoroutineFiber(func() {
		defer func() { deferred = true }()
		f.Exit()
		after = true
	})

	if out := f.Resume(); out != OutcomeCompleted {
		t.Fatalf("Resume = %v, want completed", out)
	}
	if !deferred {
		t.Error("deferred call did not run on Exit")
	}
	if after {
		t.Error("code after Exit ran")
	}
}

// TestGoroutineFiber_CloseUnwindsParkedFiber verifies Close tears down a suspended stack
// Given: A fiber parked inside Suspend with a deferred call pending
// When: Close is called
// Then: The deferred call has run by the time Close returns and the fiber reports completion
func TestGoroutineFiber_CloseUnwindsParkedFiber(t *testing.T) {
	unwound := false
	resumedAfterClose := false
	var f ExecutionContext
	f = NewGoroutineFiber(func() {
		defer func() { unwound = true }()
		f.Suspend()
		resumedAfterClose = true
	})

	if out := f.Resume(); out != OutcomeSuspended {
		t.Fatalf("Resume = %v, want suspended", out)
	}

	f.Close()

	if !unwound {
		t.Error("Close returned before the parked stack was unwound")
	}
	if resumedAfterClose {
		t.Error("body continued past Suspend after Close")
	}
	if out := f.Resume(); out != OutcomeCompleted {
		t.Fatalf("Resume after Close = %v, want completed", out)
	}
}

// TestGoroutineFiber_CloseBeforeStart verifies a never-started fiber never runs
func TestGoroutineFiber_CloseBeforeStart(t *testing.T) {
	ran := false
	f := NewGoroutineFiber(func() { ran = true })

	f.Close()
	f.Close()

	if out := f.Resume(); out != OutcomeCompleted {
		t.Fatalf("Resume after Close = %v, want completed", out)
	}
	if ran {
		t.Error("closed fiber body ran")
	}
}

func TestOutcome_String(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeSuspended: "suspended",
		OutcomeCompleted: "completed",
		Outcome(42):      "unknown",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
