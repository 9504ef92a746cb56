package core

// taskTable is a fixed-capacity, append-only registry of task records.
// Slots are never renumbered or reused; a terminated record stays in place.
type taskTable struct {
	records  []*taskRecord
	capacity int
}

func newTaskTable(capacity int) *taskTable {
	return &taskTable{
		records:  make([]*taskRecord, 0, capacity),
		capacity: capacity,
	}
}

// Len returns the number of assigned slots, live or not.
func (t *taskTable) Len() int {
	return len(t.records)
}

func (t *taskTable) Cap() int {
	return t.capacity
}

func (t *taskTable) Full() bool {
	return len(t.records) >= t.capacity
}

// Append assigns the next slot to rec and returns its handle.
// The caller must check Full first.
func (t *taskTable) Append(rec *taskRecord) TaskHandle {
	t.records = append(t.records, rec)
	h := handleForIndex(len(t.records) - 1)
	rec.handle = h
	return h
}

func (t *taskTable) At(idx int) *taskRecord {
	return t.records[idx]
}

// Lookup resolves a handle. Out-of-range handles (including NoTask) report false.
func (t *taskTable) Lookup(h TaskHandle) (*taskRecord, bool) {
	idx := h.index()
	if idx < 0 || idx >= len(t.records) {
		return nil, false
	}
	return t.records[idx], true
}

func (t *taskTable) ActiveCount() int {
	n := 0
	for _, rec := range t.records {
		if rec.active {
			n++
		}
	}
	return n
}
