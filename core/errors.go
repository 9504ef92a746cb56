package core

import "errors"

var (
	// ErrTableFull is returned by Create when every slot of the task table is
	// assigned. Nothing is allocated when it is returned.
	ErrTableFull = errors.New("scheduler: task table full")

	// ErrNotInitialized is returned when an operation runs before Init.
	ErrNotInitialized = errors.New("scheduler: not initialized")

	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("scheduler: already initialized")

	// ErrTornDown is returned when an operation runs after Teardown.
	ErrTornDown = errors.New("scheduler: torn down")

	// ErrReentrantCall is returned by Advance and Teardown when they are called
	// from a task body or while an Advance is already in progress.
	ErrReentrantCall = errors.New("scheduler: re-entrant call outside the driver context")

	// ErrNilEntry is returned by Create when the entry function is nil.
	ErrNilEntry = errors.New("scheduler: nil task entry")
)
