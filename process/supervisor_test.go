package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/open3e-harness/wait"
)

// script returns a supervisor whose command prefix runs body with sh; the
// per-call arguments become the positional parameters.
func script(t *testing.T, body string, mutate ...func(*Config)) *Supervisor {
	t.Helper()
	cfg := DefaultConfig("fake-tool", []string{"sh", "-c", body, "fake-tool"})
	cfg.RunTimeout = 2 * time.Second
	cfg.GraceTimeout = 500 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewSupervisor(cfg)
	require.NoError(t, err)
	return s
}

func TestNewSupervisorDefaults(t *testing.T) {
	s, err := NewSupervisor(Config{Command: []string{"/usr/bin/open3e"}})
	require.NoError(t, err)
	cfg := s.Config()
	assert.Equal(t, "/usr/bin/open3e", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.RunTimeout)
	assert.Equal(t, 5*time.Second, cfg.GraceTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)

	_, err = NewSupervisor(Config{})
	assert.Error(t, err)
}

func TestRunCapturesOutput(t *testing.T) {
	s := script(t, `echo "args: $*"; echo note >&2`)
	res, err := s.Run(context.Background(), "-r", "0x680.256")
	require.NoError(t, err)
	assert.Equal(t, "args: -r 0x680.256\n", res.Stdout)
	assert.Equal(t, "note\n", res.Stderr)
}

func TestRunEnvAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	s := script(t, `echo "$HARNESS_MARK"; pwd`, func(c *Config) {
		c.Env = []string{"HARNESS_MARK=42"}
		c.WorkDir = dir
	})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "42\n")
	assert.Contains(t, res.Stdout, dir)
}

func TestRunNonZeroExit(t *testing.T) {
	s := script(t, `echo partial; echo "no such did" >&2; exit 3`)
	res, err := s.Run(context.Background(), "-r", "0x680.9999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExitedNonZero))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "partial\n", exitErr.Stdout)
	assert.Equal(t, "no such did\n", exitErr.Stderr)
	assert.Equal(t, exitErr.Stdout, res.Stdout)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	s := script(t, `echo started; sleep 30`, func(c *Config) { c.RunTimeout = 200 * time.Millisecond })
	start := time.Now()
	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "started\n", te.Stdout)
}

func TestRunCallerDeadlineIsNotRunTimeout(t *testing.T) {
	s := script(t, `sleep 30`)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrProcessTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	s, err := NewSupervisor(Config{Command: []string{"/nonexistent/open3e"}})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExitedNonZero))
}

func TestStartStopGraceful(t *testing.T) {
	s := script(t, `trap 'echo bye; exit 0' TERM; echo ready; while true; do sleep 0.05; done`)
	h, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, h.State())
	assert.NotZero(t, h.PID())

	require.NoError(t, wait.Until(context.Background(), func() bool { return h.Output().Stdout == "ready\n" }))

	start := time.Now()
	require.NoError(t, h.Stop())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StateExited, h.State())
	code, ok := h.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 0, code)
	assert.Contains(t, h.Output().Stdout, "bye")

	// Stop is idempotent.
	require.NoError(t, h.Stop())
}

func TestStopProcessEndedBySIGTERM(t *testing.T) {
	s := script(t, `exec sleep 30`)
	h, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.NoError(t, h.Stop())
}

func TestStopKillsProcessIgnoringSIGTERM(t *testing.T) {
	s := script(t, `trap '' TERM; echo stubborn; while true; do sleep 0.05; done`, func(c *Config) {
		c.GraceTimeout = 300 * time.Millisecond
	})
	h, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, wait.Until(context.Background(), func() bool { return h.Output().Stdout != "" }))

	err = h.Stop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDidNotTerminate))

	var nt *NotTerminatedError
	require.True(t, errors.As(err, &nt))
	assert.Equal(t, "stubborn\n", nt.Stdout)
	assert.Equal(t, h.PID(), nt.PID)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process still running after SIGKILL")
	}
}

func TestStopReportsEarlyFailure(t *testing.T) {
	s := script(t, `echo "broker unreachable" >&2; exit 4`)
	h, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, wait.Until(context.Background(), h.Exited))

	err = h.Stop()
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 4, exitErr.Code)
	assert.Equal(t, "broker unreachable\n", exitErr.Stderr)
}

func TestStopReportsNonZeroExitAfterSIGTERM(t *testing.T) {
	s := script(t, `trap 'exit 7' TERM; echo ready; while true; do sleep 0.05; done`)
	h, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, wait.Until(context.Background(), func() bool { return h.Output().Stdout == "ready\n" }))

	err = h.Stop()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 7, exitErr.Code)
}

func TestScopeStopsProcess(t *testing.T) {
	s := script(t, `while true; do sleep 0.05; done`)
	var handle *Handle
	err := s.Scope(context.Background(), nil, func(h *Handle) error {
		handle = h
		assert.Equal(t, StateRunning, h.State())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, handle.Exited())
}

func TestScopeJoinsErrors(t *testing.T) {
	s := script(t, `echo "bad config" >&2; exit 2`)
	testErr := errors.New("assertion failed")
	err := s.Scope(context.Background(), nil, func(h *Handle) error {
		require.NoError(t, wait.Until(context.Background(), h.Exited))
		return testErr
	})
	assert.ErrorIs(t, err, testErr)
	assert.ErrorIs(t, err, ErrExitedNonZero)
}

func TestScopeStopsOnPanic(t *testing.T) {
	s := script(t, `while true; do sleep 0.05; done`)
	var handle *Handle
	assert.Panics(t, func() {
		_ = s.Scope(context.Background(), nil, func(h *Handle) error {
			handle = h
			panic("test panic")
		})
	})
	require.NotNil(t, handle)
	assert.True(t, handle.Exited())
}

func TestContextCancellationStopsProcess(t *testing.T) {
	s := script(t, `while true; do sleep 0.05; done`)
	ctx, cancel := context.WithCancel(context.Background())
	h, err := s.Start(ctx)
	require.NoError(t, err)
	cancel()
	require.NoError(t, wait.Until(context.Background(), h.Exited))
	assert.NoError(t, h.Stop())
}
