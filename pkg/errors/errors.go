package errors

import (
	"fmt"
	"io"
	"strings"
)

// KestrelError is the interface implemented by all Kestrel diagnostics.
type KestrelError interface {
	error // Embed the standard error interface
	Pos() Position
	Kind() string // e.g. "Compile", "Target", "StateMachine", "Runtime"
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// --- Concrete Error Types ---

// CompileError reports a genuinely invalid construct in the source program,
// e.g. a return outside a function or private-member access outside its
// class. It aborts emission of the offending unit only.
type CompileError struct {
	Position
	Msg   string
	Cause error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("Compile Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *CompileError) Pos() Position   { return e.Position }
func (e *CompileError) Kind() string    { return "Compile" }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Unwrap() error   { return e.Cause }
func (e *CompileError) CausedBy(cause error) *CompileError {
	e.Cause = cause
	return e
}

// TargetError reports a missing target type/method/field handle during
// emission. This indicates internal inconsistency rather than a user
// error, so it aborts the whole compilation immediately.
type TargetError struct {
	Position
	Msg   string
	Cause error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("Target Error: %s", e.Msg)
}
func (e *TargetError) Pos() Position   { return e.Position }
func (e *TargetError) Kind() string    { return "Target" }
func (e *TargetError) Message() string { return e.Msg }
func (e *TargetError) Unwrap() error   { return e.Cause }
func (e *TargetError) CausedBy(cause error) *TargetError {
	e.Cause = cause
	return e
}

// StateMachineError reports control flow that cannot cross a suspension
// boundary (e.g. await inside a finally block). The construct is named so
// the user can restructure; the unit produces no output.
type StateMachineError struct {
	Position
	Msg   string
	Cause error
}

func (e *StateMachineError) Error() string {
	return fmt.Sprintf("State Machine Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *StateMachineError) Pos() Position   { return e.Position }
func (e *StateMachineError) Kind() string    { return "StateMachine" }
func (e *StateMachineError) Message() string { return e.Msg }
func (e *StateMachineError) Unwrap() error   { return e.Cause }
func (e *StateMachineError) CausedBy(cause error) *StateMachineError {
	e.Cause = cause
	return e
}

// RuntimeError reports a fault that only manifests when the emitted
// artifact executes. The distinct kind prefix keeps execution-time
// failures distinguishable from compile-time diagnostics in output.
type RuntimeError struct {
	Position
	Msg   string
	Cause error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("Runtime Error: %s", e.Msg)
}
func (e *RuntimeError) Pos() Position   { return e.Position }
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// IsFatal reports whether err must abort the whole compilation rather
// than just the current unit.
func IsFatal(err KestrelError) bool {
	return err.Kind() == "Target"
}

// --- Error Reporting ---

// DisplayErrors writes a list of Kestrel diagnostics to w in a
// user-friendly format, including the source line and a position marker.
func DisplayErrors(w io.Writer, errs []KestrelError) {
	for _, err := range errs {
		pos := err.Pos()
		kind := err.Kind()
		msg := err.Message()

		var lines []string
		if pos.Unit != nil {
			lines = pos.Unit.Lines()
		}

		lineIdx := pos.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(w, "%s Error: %s\n", kind, msg)
			continue
		}

		sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")

		fmt.Fprintf(w, "%s Error at %d:%d: %s\n", kind, pos.Line, pos.Column, msg)
		fmt.Fprintf(w, "  %s\n", sourceLine)
		marker := strings.Repeat(" ", pos.Column) + "^"
		fmt.Fprintf(w, "  %s\n", marker)
		fmt.Fprintln(w)
	}
}
