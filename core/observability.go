package core

import "time"

// TaskState is the scheduling state of one task slot.
type TaskState int

const (
	// TaskStateCreated: created, never resumed.
	TaskStateCreated TaskState = iota
	// TaskStateRunning: currently executing.
	TaskStateRunning
	// TaskStateReady: started, no delay pending; due on the next tick.
	TaskStateReady
	// TaskStateWaiting: started, delay pending.
	TaskStateWaiting
	// TaskStateTerminated: deleted or returned. Absorbing.
	TaskStateTerminated
)

func (s TaskState) String() string {
	switch s {
	case TaskStateCreated:
		return "created"
	case TaskStateRunning:
		return "running"
	case TaskStateReady:
		return "ready"
	case TaskStateWaiting:
		return "waiting"
	case TaskStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ResumeRecord captures one resume of a task, from the driver handing over
// control until the task handed it back.
type ResumeRecord struct {
	SchedulerID   string
	SchedulerName string
	Tick          uint64
	Handle        TaskHandle
	Name          string
	First         bool
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Outcome       Outcome
	// ExitReason is set when Outcome is OutcomeCompleted.
	ExitReason string
}

// TaskInfo is a point-in-time view of one task slot.
type TaskInfo struct {
	Handle           TaskHandle
	Name             string
	State            TaskState
	Active           bool
	Started          bool
	RemainingDelayMS int64
	StackHint        uint32
	Resumes          uint64
	CreatedAt        time.Time
	LastResumeAt     time.Time
	ExitReason       string
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	ID       string
	Name     string
	Capacity int
	// Slots is the number of assigned table slots, live or terminated.
	Slots      int
	Active     int
	Waiting    int
	Terminated int
	Rejected   int64
	Ticks      uint64
	Current    TaskHandle
	LastTickAt time.Time
	TornDown   bool
}
