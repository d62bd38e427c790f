// Package vm implements a bidirectional backtracking bytecode matcher.
//
// A Program is a flat instruction sequence produced by a compiler; the
// Processor executes it against an input from a start position, pushing
// save points at choice points and restoring them on failure. Every
// input-consuming instruction carries a Direction, so the same
// interpreter evaluates forward matches and lookbehind bodies (which
// run in reverse) over one program representation.
package vm

import (
	"errors"
	"fmt"
)

// Common vm errors
var (
	// ErrStepLimit indicates the step budget was exhausted before the
	// attempt could accept or fail. This is resource exhaustion, distinct
	// from a semantic non-match.
	ErrStepLimit = errors.New("step limit exceeded")

	// ErrDirection indicates a run was requested in a direction the
	// program was not built for.
	ErrDirection = errors.New("direction does not match program")

	// ErrStartPosition indicates the start position lies outside the input
	ErrStartPosition = errors.New("start position out of range")

	// ErrStackUnderflow indicates a clear instruction ran with no pending
	// save point. This is a malformed program that escaped validation.
	ErrStackUnderflow = errors.New("save-point stack underflow")
)

// BuildError represents an error during program construction via the Builder
type BuildError struct {
	Message string
	PC      int // instruction index, or -1 when not tied to one
}

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.PC >= 0 {
		return fmt.Sprintf("program build error at pc %d: %s", e.PC, e.Message)
	}
	return fmt.Sprintf("program build error: %s", e.Message)
}
