package session

import (
	"errors"
	"fmt"

	"github.com/cenkalti/flux/engine"
)

var (
	// ErrClosed is returned when submitting to a worker that has shut down.
	ErrClosed = errors.New("session worker is closed")
	// ErrCommandQueueFull is returned when the command channel stays full for Config.CommandTimeout.
	ErrCommandQueueFull = errors.New("command queue is full")
)

// InputError is returned when a command carries invalid arguments.
type InputError struct {
	err error
}

func newInputError(format string, v ...any) *InputError {
	return &InputError{err: fmt.Errorf(format, v...)}
}

func (e *InputError) Error() string {
	return "input error: " + e.err.Error()
}

func (e *InputError) Unwrap() error {
	return e.err
}

// CommandError wraps the error of a failed command.
type CommandError struct {
	Command string
	ID      engine.TorrentID
	Err     error
}

func (e *CommandError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Command, e.ID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
