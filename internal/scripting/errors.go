package scripting

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransform     = errors.New("no transform script defined")
	ErrReplaceNotFound = errors.New("field to replace not found")
	ErrOptimization    = errors.New("invalid optimization level")
	ErrReservedName    = errors.New("field name collides with a reserved script name")
	ErrScriptFailed    = errors.New("transformation requested an error stop")
)

// InitError is any failure while building a session. The worker processes
// no rows after one.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("script step %q: init: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// RuntimeError is a script failure or output coercion failure on one row.
type RuntimeError struct {
	Step string
	Line int
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("script step %q: row %d: %v", e.Step, e.Line, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// TeardownError is an end script failure. It is logged and marks the worker
// failed but never stops the pipeline by itself.
type TeardownError struct {
	Step string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("script step %q: teardown: %v", e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// ErrorCode is attached to every routed error row.
const ErrorCode = "SCR-001"
