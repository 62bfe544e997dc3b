package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/wait"
)

// State is the lifecycle state of a detached process.
type State string

const (
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateExited      State = "exited"
)

// syncBuffer is written by the exec copy goroutine and read by the handle
// owner.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Handle is a detached process started by Supervisor.Start.
type Handle struct {
	name  string
	grace time.Duration
	poll  time.Duration
	log   logger.Logger
	cmd   *exec.Cmd
	pid   int

	stdout *syncBuffer
	stderr *syncBuffer

	mu       sync.Mutex
	state    State
	exitCode int
	signal   syscall.Signal
	waitErr  error
	done     chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func newHandle(cfg Config, log logger.Logger, cmd *exec.Cmd) *Handle {
	return &Handle{
		name:   cfg.Name,
		grace:  cfg.GraceTimeout,
		poll:   cfg.PollInterval,
		log:    log,
		cmd:    cmd,
		stdout: &syncBuffer{},
		stderr: &syncBuffer{},
		state:  StateRunning,
		done:   make(chan struct{}),
	}
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.state = StateExited
	h.exitCode = h.cmd.ProcessState.ExitCode()
	if sig, ok := terminatingSignal(h.cmd.ProcessState); ok {
		h.signal = sig
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.waitErr = err
	}
	h.mu.Unlock()
	close(h.done)
	h.log.Debugw("process exited", map[string]any{"name": h.name, "pid": h.pid, "code": h.exitCode})
}

// PID returns the process ID.
func (h *Handle) PID() int { return h.pid }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool { return h.State() == StateExited }

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode returns the exit code once the process has exited.
func (h *Handle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateExited {
		return 0, false
	}
	return h.exitCode, true
}

// Output returns what the process has written so far.
func (h *Handle) Output() Result {
	return Result{Stdout: h.stdout.String(), Stderr: h.stderr.String()}
}

// Stop terminates the process: SIGTERM to its group, exit polled for the grace
// timeout, then SIGKILL. It returns a *NotTerminatedError if the process had to
// be killed and an *ExitError if it exited with a non-zero status, including
// before Stop was called. A process ended by the SIGTERM itself stopped
// cleanly. Stop is idempotent and returns the same result on every call.
func (h *Handle) Stop() error {
	h.stopOnce.Do(func() { h.stopErr = h.stop() })
	return h.stopErr
}

func (h *Handle) stop() error {
	h.mu.Lock()
	if h.state == StateExited {
		h.mu.Unlock()
		h.log.Warnf("%s (pid %d) exited before it was stopped", h.name, h.pid)
		return h.exitResult(false)
	}
	h.state = StateTerminating
	h.mu.Unlock()

	h.log.Infof("stopping %s (pid %d)", h.name, h.pid)
	if err := signalGroup(h.pid, syscall.SIGTERM); err != nil {
		h.log.Warnf("failed to send SIGTERM to %s: %v", h.name, err)
	}

	err := wait.For(context.Background(), h.grace, h.poll, wait.Bool(h.Exited))
	if err == nil {
		return h.exitResult(true)
	}
	if !errors.Is(err, wait.ErrTimeout) {
		return err
	}

	h.log.Errorf("%s (pid %d) ignored SIGTERM for %v, sending SIGKILL", h.name, h.pid, h.grace)
	if err := signalGroup(h.pid, syscall.SIGKILL); err != nil {
		h.log.Errorf("failed to kill %s: %v", h.name, err)
	}
	select {
	case <-h.done:
	case <-time.After(h.grace):
	}
	out := h.Output()
	return &NotTerminatedError{Name: h.name, PID: h.pid, Grace: h.grace, Stdout: out.Stdout, Stderr: out.Stderr}
}

func (h *Handle) exitResult(terminated bool) error {
	h.mu.Lock()
	code, sig, waitErr := h.exitCode, h.signal, h.waitErr
	h.mu.Unlock()

	if waitErr != nil {
		return waitErr
	}
	if code == 0 || (terminated && sig == syscall.SIGTERM) {
		return nil
	}
	out := h.Output()
	e := &ExitError{Name: h.name, Code: code, Stdout: out.Stdout, Stderr: out.Stderr}
	if sig != 0 {
		e.Signal = sig.String()
	}
	return e
}
