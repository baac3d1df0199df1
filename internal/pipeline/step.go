// Package pipeline runs an outbound reply through an ordered list of steps.
package pipeline

import (
	"context"
	"fmt"
)

// Step is one stage of outbound post-processing.
// Handle may mutate pc.Message in place.
type Step interface {
	Name() string
	Handle(ctx context.Context, pc *Context) Result
}

// Initializer is implemented by steps that need setup before the first run.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Terminator is implemented by steps that hold resources until shutdown.
type Terminator interface {
	Terminate(ctx context.Context) error
}

// Result is a step's verdict. Abort stops the run; Note is logged.
type Result struct {
	Abort bool
	Note  string
}

// Continue lets the run proceed.
func Continue() Result { return Result{} }

// Noted lets the run proceed and records a note.
func Noted(format string, args ...any) Result {
	return Result{Note: fmt.Sprintf(format, args...)}
}

// Abort stops the run and suppresses delivery.
func Abort(format string, args ...any) Result {
	return Result{Abort: true, Note: fmt.Sprintf(format, args...)}
}
