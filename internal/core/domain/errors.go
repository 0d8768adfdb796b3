package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("game not found")
	ErrInvalidDirectory   = errors.New("invalid game directory")
	ErrPortExhausted      = errors.New("no free host port within retry limit")
	ErrRuntimeUnreachable = errors.New("container runtime unreachable")
	ErrPortTaken          = errors.New("port already assigned to another game")
)

// FailureReason classifies why the runtime refused to launch a container.
type FailureReason int

const (
	ReasonOther FailureReason = iota
	ReasonPortConflict
	ReasonNameConflict
)

func (r FailureReason) String() string {
	switch r {
	case ReasonPortConflict:
		return "port_conflict"
	case ReasonNameConflict:
		return "name_conflict"
	default:
		return "other"
	}
}

// RuntimeError is returned by runtime adapters. Message keeps the engine's
// diagnostic text verbatim so it can be classified later.
type RuntimeError struct {
	Reason  FailureReason
	Message string
	Err     error
}

func (e *RuntimeError) Error() string {
	return e.Message
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// LaunchError is the terminal result of a start that could not be recovered.
type LaunchError struct {
	Reason  FailureReason
	Message string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed (%s): %s", e.Reason, e.Message)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// StopError reports a failed force-removal during stop.
type StopError struct {
	Message string
	Err     error
}

func (e *StopError) Error() string {
	return "stop failed: " + e.Message
}

func (e *StopError) Unwrap() error {
	return e.Err
}
