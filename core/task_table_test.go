package core

import "testing"

// TestTaskTable_AppendAndLookup verifies handles are 1-based creation indices
func TestTaskTable_AppendAndLookup(t *testing.T) {
	table := newTaskTable(3)

	a := &taskRecord{name: "a", active: true}
	b := &taskRecord{name: "b", active: true}

	if h := table.Append(a); h != 1 || a.handle != 1 {
		t.Fatalf("first Append = %v (record %v), want 1", h, a.handle)
	}
	if h := table.Append(b); h != 2 {
		t.Fatalf("second Append = %v, want 2", h)
	}

	if rec, ok := table.Lookup(2); !ok || rec != b {
		t.Fatalf("Lookup(2) = %v, %v", rec, ok)
	}
	for _, h := range []TaskHandle{NoTask, -1, 3, 100} {
		if _, ok := table.Lookup(h); ok {
			t.Errorf("Lookup(%v) reported ok", h)
		}
	}
	if table.Len() != 2 || table.Cap() != 3 || table.Full() {
		t.Fatalf("Len/Cap/Full = %d/%d/%v", table.Len(), table.Cap(), table.Full())
	}
}

// TestTaskTable_FullAndActiveCount verifies slots stay assigned after records go inactive
func TestTaskTable_FullAndActiveCount(t *testing.T) {
	table := newTaskTable(2)
	a := &taskRecord{active: true}
	table.Append(a)
	table.Append(&taskRecord{active: true})

	if !table.Full() {
		t.Fatal("Full() = false at capacity")
	}

	a.active = false

	if table.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", table.ActiveCount())
	}
	if !table.Full() {
		t.Fatal("inactive slot was freed")
	}
	if table.At(0) != a {
		t.Fatal("At(0) is not the first record")
	}
}
