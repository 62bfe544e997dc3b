package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/kilianp07/open3e-harness/logger"
)

// Config holds configuration for a supervised command.
type Config struct {
	// Name is a human-readable identifier for logs and errors.
	Name string

	// Command is the fixed prefix of every invocation: the executable followed
	// by the arguments shared by all calls.
	Command []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// RunTimeout bounds run-to-completion invocations.
	RunTimeout time.Duration

	// GraceTimeout is how long a detached process may take to exit after
	// SIGTERM before it is killed.
	GraceTimeout time.Duration

	// PollInterval is the exit polling period during graceful shutdown.
	PollInterval time.Duration

	Logger logger.Logger
}

// DefaultConfig returns a Config with the harness defaults.
func DefaultConfig(name string, command []string) Config {
	return Config{
		Name:         name,
		Command:      command,
		RunTimeout:   10 * time.Second,
		GraceTimeout: 5 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Supervisor launches processes sharing one command prefix.
type Supervisor struct {
	cfg Config
	log logger.Logger
}

// NewSupervisor validates cfg and applies defaults for zero values.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("process: command is required")
	}
	def := DefaultConfig(cfg.Name, cfg.Command)
	if cfg.Name == "" {
		cfg.Name = cfg.Command[0]
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = def.GraceTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &Supervisor{cfg: cfg, log: logger.OrNop(cfg.Logger)}, nil
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config { return s.cfg }

// Result holds the complete output of a finished process.
type Result struct {
	Stdout string
	Stderr string
}

func (s *Supervisor) command(ctx context.Context, args []string) *exec.Cmd {
	argv := append(append([]string{}, s.cfg.Command[1:]...), args...)
	cmd := exec.CommandContext(ctx, s.cfg.Command[0], argv...) //nolint:gosec // command comes from harness configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	if s.cfg.WorkDir != "" {
		cmd.Dir = s.cfg.WorkDir
	}
	return cmd
}

// Run executes the command with args and blocks until it exits. A process still
// running after RunTimeout is killed with its whole group and reported as a
// *TimeoutError; a non-zero exit is reported as an *ExitError. Both carry the
// captured output.
func (s *Supervisor) Run(ctx context.Context, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	cmd := s.command(runCtx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return signalGroup(cmd.Process.Pid, syscall.SIGKILL) }
	// Grandchildren holding the pipes open must not block Wait forever.
	cmd.WaitDelay = time.Second

	s.log.Debugw("running process", map[string]any{"name": s.cfg.Name, "args": args})
	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctxErr := runCtx.Err(); ctxErr != nil && err != nil {
		// A deadline or cancellation of the caller is not our RunTimeout.
		if parentErr := ctx.Err(); parentErr != nil {
			s.log.Warnf("%s killed after %v: %v", s.cfg.Name, time.Since(start), parentErr)
			return res, fmt.Errorf("run %s: %w", s.cfg.Name, parentErr)
		}
		s.log.Warnf("%s killed after %v", s.cfg.Name, time.Since(start))
		return res, &TimeoutError{Name: s.cfg.Name, Timeout: s.cfg.RunTimeout, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e := &ExitError{Name: s.cfg.Name, Code: exitErr.ExitCode(), Stdout: res.Stdout, Stderr: res.Stderr}
			if sig, ok := terminatingSignal(exitErr.ProcessState); ok {
				e.Signal = sig.String()
			}
			return res, e
		}
		return res, fmt.Errorf("run %s: %w", s.cfg.Name, err)
	}
	s.log.Debugw("process finished", map[string]any{"name": s.cfg.Name, "elapsed": time.Since(start).String()})
	return res, nil
}

// Start launches the command with args in the background. The caller owns the
// returned handle and must Stop it; cancelling ctx stops it as well.
func (s *Supervisor) Start(ctx context.Context, args ...string) (*Handle, error) {
	// The process is not bound to ctx: cancellation goes through Stop so it is
	// graceful first.
	cmd := s.command(context.Background(), args)
	h := newHandle(s.cfg, s.log, cmd)
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr
	cmd.WaitDelay = s.cfg.GraceTimeout

	s.log.Infof("starting %s %v", s.cfg.Name, args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}
	h.pid = cmd.Process.Pid
	s.log.Debugw("process started", map[string]any{"name": s.cfg.Name, "pid": h.pid})

	go h.wait()
	go func() {
		select {
		case <-ctx.Done():
			_ = h.Stop()
		case <-h.done:
		}
	}()
	return h, nil
}

// Scope starts the command, hands the handle to fn and stops the process when
// fn returns, even on panic. Errors from fn and from stopping are joined.
func (s *Supervisor) Scope(ctx context.Context, args []string, fn func(*Handle) error) (err error) {
	h, err := s.Start(ctx, args...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, h.Stop())
	}()
	return fn(h)
}

func signalGroup(pid int, sig syscall.Signal) error {
	// Negative PID addresses the process group created via Setpgid.
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func terminatingSignal(ps *os.ProcessState) (syscall.Signal, bool) {
	if ps == nil {
		return 0, false
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return 0, false
	}
	return ws.Signal(), true
}
