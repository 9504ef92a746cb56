package core

import "testing"

// TestExecutionHistory_RingBuffer verifies the history keeps the newest records only
// Given: A history with capacity 3
// When: Five records are added
// Then: Recent returns the last three newest first and Last returns the fifth
func TestExecutionHistory_RingBuffer(t *testing.T) {
	h := newExecutionHistory(3)

	if _, ok := h.Last(); ok {
		t.Fatal("Last() on empty history reported ok")
	}
	if got := h.Recent(10); got != nil {
		t.Fatalf("Recent on empty history = %v, want nil", got)
	}

	for i := 1; i <= 5; i++ {
		h.Add(ResumeRecord{Tick: uint64(i)})
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("len(Recent(0)) = %d, want 3", len(recent))
	}
	for i, want := range []uint64{5, 4, 3} {
		if recent[i].Tick != want {
			t.Fatalf("Recent(0)[%d].Tick = %d, want %d", i, recent[i].Tick, want)
		}
	}

	if got := h.Recent(2); len(got) != 2 || got[1].Tick != 4 {
		t.Fatalf("Recent(2) = %+v", got)
	}

	last, ok := h.Last()
	if !ok || last.Tick != 5 {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}
}

func TestExecutionHistory_DefaultCapacity(t *testing.T) {
	h := newExecutionHistory(0)
	for i := 0; i < DefaultHistoryCapacity+10; i++ {
		h.Add(ResumeRecord{Tick: uint64(i)})
	}
	if got := len(h.Recent(0)); got != DefaultHistoryCapacity {
		t.Fatalf("retained = %d, want %d", got, DefaultHistoryCapacity)
	}
}
