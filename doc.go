// Package fiberrunner runs RTOS-style firmware tasks cooperatively on a host,
// driven tick by tick by a frame loop.
//
// Each task gets its own execution context (a goroutine used as a fiber) but
// only one of them, or the driver, runs at any instant. A task runs until it
// calls Delay, deletes itself or returns; then the next due task runs. Time
// only moves when the host calls Advance with the milliseconds elapsed since
// the previous frame.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	fiberrunner.InitGlobalScheduler(nil) // 16 slots, 1ms ticks
//	defer fiberrunner.ShutdownGlobalScheduler()
//
// Create tasks with the RTOS-named helpers:
//
//	fiberrunner.TaskCreate(func(ctx context.Context, arg any) {
//		for {
//			toggleLED()
//			fiberrunner.TaskDelay(fiberrunner.MsToTicks(500))
//		}
//	}, "blink", 2048, nil, 1)
//
// Feed elapsed time from the host loop:
//
//	for frame := range frames {
//		fiberrunner.RunBackgroundTasks(frame.ElapsedMS)
//	}
//
// # Key Concepts
//
// Scheduler: owns a fixed-capacity task table and the driver context. Advance
// resumes every due task in creation order.
//
// TaskHandle: 1-based creation index of a task. NoTask means the driver, or
// "the calling task" when passed to Delete.
//
// Delay: the only blocking primitive. Remaining delay is decremented by the
// elapsed time fed to Advance and clamped at zero; overshoot is not carried
// into the next delay.
//
// host.FrameDriver: paces frames, clamps elapsed time and calls Advance.
//
// For instance-based use, see core.NewScheduler.
package fiberrunner
