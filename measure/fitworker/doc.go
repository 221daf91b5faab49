// Package fitworker runs peak fit actions on a dedicated goroutine.
//
// A [Worker] executes at most one action at a time. [Worker.Submit] never
// blocks: it either hands the action to the worker or fails with [ErrBusy].
// Every action runs on a private clone of the submitted [peak.State], so the
// caller keeps its own copy untouched. Progress and completion are
// published as full state snapshots on [Worker.Updates]; the final result of
// an action is also delivered on its [Job].
//
// [Worker.Stop] cancels the running action cooperatively. A whole-spectrum
// fit checks for cancellation between ROIs, never inside one ROI's fit.
package fitworker
