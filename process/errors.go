package process

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProcessTimeout is matched by *TimeoutError.
	ErrProcessTimeout = errors.New("process timed out")
	// ErrExitedNonZero is matched by *ExitError.
	ErrExitedNonZero = errors.New("process exited with non-zero status")
	// ErrDidNotTerminate is matched by *NotTerminatedError.
	ErrDidNotTerminate = errors.New("process did not terminate")
)

// TimeoutError is returned by Run when the process outlives the run timeout.
// The process group has been killed.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
	Stdout  string
	Stderr  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: killed after %v. stdout: %q, stderr: %q", e.Name, e.Timeout, e.Stdout, e.Stderr)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrProcessTimeout }

// ExitError reports a non-zero exit status. Code is -1 when the process was
// terminated by a signal, named in Signal.
type ExitError struct {
	Name   string
	Code   int
	Signal string
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	status := fmt.Sprintf("exit code %d", e.Code)
	if e.Signal != "" {
		status = "signal " + e.Signal
	}
	return fmt.Sprintf("%s failed with %s. stdout: %q, stderr: %q", e.Name, status, e.Stdout, e.Stderr)
}

func (e *ExitError) Is(target error) bool { return target == ErrExitedNonZero }

// NotTerminatedError is returned when a detached process ignored SIGTERM for
// the whole grace period and had to be killed.
type NotTerminatedError struct {
	Name   string
	PID    int
	Grace  time.Duration
	Stdout string
	Stderr string
}

func (e *NotTerminatedError) Error() string {
	return fmt.Sprintf("%s (pid %d) did not complete within %v, process killed. stdout: %q, stderr: %q",
		e.Name, e.PID, e.Grace, e.Stdout, e.Stderr)
}

func (e *NotTerminatedError) Is(target error) bool { return target == ErrDidNotTerminate }
