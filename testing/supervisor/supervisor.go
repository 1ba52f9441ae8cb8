package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spantrap/harness/internal/syncbuffer"
	"github.com/spantrap/harness/o11y"
)

// Config describes the child invocation.
type Config struct {
	// Name is the service name, handed to the child as SERVICE_NAME.
	Name string
	// Cmd is the argv of the child. The first element is the binary.
	Cmd []string
	// Env is extra KEY=VALUE pairs for the child. They are appended after
	// the inherited environment and the harness variables, so they win.
	Env []string
	// SpanDump is the path the child should write its span dump to, handed
	// to the child as O11Y_SPAN_DUMP. Required for ProbeAndReadSpans.
	SpanDump string
	// Debug is handed to the child as O11Y_DEBUG.
	Debug bool

	// ProbeTimeout bounds each Probe call. Defaults to 10s.
	ProbeTimeout time.Duration
	// StopTimeout is how long Terminate waits after SIGTERM before it
	// escalates to SIGKILL. Defaults to 10s.
	StopTimeout time.Duration
}

const (
	defaultProbeTimeout = 10 * time.Second
	defaultStopTimeout  = 10 * time.Second
)

// Supervisor owns exactly one child process for the whole of its lifetime.
// A new child means a new Supervisor.
type Supervisor struct {
	name         string
	cmd          *exec.Cmd
	logs         *syncbuffer.SyncBuffer
	spanDump     string
	probeTimeout time.Duration
	stopTimeout  time.Duration

	// port resolves with the announced port, or with the exit error if the
	// child went away before announcing one.
	port *cell
	// exit resolves with the exit code when the child is reaped, and with
	// an UnexpectedExitError if the child died without being asked to.
	exit *cell

	mu       sync.Mutex
	stopping bool

	terminateOnce sync.Once
}

// Start spawns the child described by cfg and begins supervising it. A spawn
// failure is returned here and no Supervisor exists. The caller is
// responsible for calling Terminate.
func Start(ctx context.Context, cfg Config) (*Supervisor, error) {
	if len(cfg.Cmd) == 0 {
		return nil, errors.New("no command configured")
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	//#nosec:G204 // this is intentionally running a command for tests
	cmd := exec.Command(cfg.Cmd[0], cfg.Cmd[1:]...)

	// Inherited environment, then the harness contract variables, then the
	// caller's extras. exec gives later duplicate keys precedence.
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env,
		"SERVICE_NAME="+cfg.Name,
		"O11Y_SPAN_DUMP="+cfg.SpanDump,
		"O11Y_DEBUG="+strconv.FormatBool(cfg.Debug),
	)
	cmd.Env = append(cmd.Env, cfg.Env...)

	s := &Supervisor{
		name:         cfg.Name,
		cmd:          cmd,
		logs:         &syncbuffer.SyncBuffer{},
		spanDump:     cfg.SpanDump,
		probeTimeout: cfg.ProbeTimeout,
		stopTimeout:  cfg.StopTimeout,
		port:         newCell(),
		exit:         newCell(),
	}

	// one scanner across both streams, the announcement can be on either
	scan := &portScanner{cell: s.port}
	cmd.Stdout = io.MultiWriter(s.logs, scan, os.Stdout)
	cmd.Stderr = io.MultiWriter(s.logs, scan, os.Stderr)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", cfg.Cmd[0], err)
	}

	o11y.Log(ctx, "supervisor: child started",
		o11y.Field("name", s.name),
		o11y.Field("pid", cmd.Process.Pid),
	)

	go s.reap(ctx)

	return s, nil
}

// PID is the child's process id, fixed at spawn.
func (s *Supervisor) PID() int {
	return s.cmd.Process.Pid
}

// Logs returns everything the child has written to either stream so far.
func (s *Supervisor) Logs() string {
	return s.logs.String()
}

// AwaitPort blocks until the child announces its port, and returns it. If the
// child exited before announcing, the exit error is returned instead, however
// many times AwaitPort is called. Cancellation of ctx only affects this call.
func (s *Supervisor) AwaitPort(ctx context.Context) (int, error) {
	return s.port.wait(ctx)
}

// AwaitReady is AwaitPort for callers that do not need the port itself.
func (s *Supervisor) AwaitReady(ctx context.Context) error {
	_, err := s.port.wait(ctx)
	return err
}

// Terminate asks the child to stop and returns its exit code, -1 if it died
// to a signal. The child gets SIGTERM, StopTimeout to comply, then SIGKILL.
// Exits the supervisor asked for are not errors; if the child had already
// died on its own the memoized UnexpectedExitError is returned (alongside the
// code) without signalling anything. Terminate is safe to call repeatedly and
// concurrently, every call returns the same result.
func (s *Supervisor) Terminate(ctx context.Context) (int, error) {
	s.terminateOnce.Do(func() {
		if s.exit.resolved() {
			return
		}

		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// the child may have won the race and exited already, the
			// reaper will report what actually happened
			o11y.Log(ctx, "supervisor: termination signal failed",
				o11y.Field("name", s.name),
				o11y.Field("error", err),
			)
		}

		go func() {
			select {
			case <-s.exit.done:
			case <-time.After(s.stopTimeout):
				_ = s.cmd.Process.Kill()
			}
		}()
	})

	return s.exit.wait(ctx)
}

// reap waits for the child to exit, classifies the exit, and resolves the
// cells. It is the only writer of the exit cell.
func (s *Supervisor) reap(ctx context.Context) {
	// the wait error carries nothing ProcessState does not
	_ = s.cmd.Wait()
	pid := s.cmd.Process.Pid
	code, signal, signaled := exitStatus(s.cmd.ProcessState)

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()

	var exitErr error
	switch {
	case stopping:
		// whatever the child did once asked to stop, including dying to
		// the SIGKILL escalation, was asked for
	case signaled && signal == syscall.SIGTERM:
	case !signaled && code == 0:
	default:
		e := &UnexpectedExitError{PID: pid, Code: code}
		if signaled {
			e.Signal = signal.String()
		}
		exitErr = e
	}

	if exitErr != nil {
		o11y.Log(ctx, "supervisor: child exited unexpectedly",
			o11y.Field("name", s.name),
			o11y.Field("error", exitErr),
		)
	} else {
		o11y.Log(ctx, "supervisor: child exited",
			o11y.Field("name", s.name),
			o11y.Field("exit_code", code),
		)
	}

	// A child that already announced keeps its port: this resolve is a no-op
	// then. Otherwise waiters learn the child is gone.
	if exitErr != nil {
		s.port.resolve(0, exitErr)
	} else {
		s.port.resolve(0, &PrematureExitError{PID: pid})
	}

	s.exit.resolve(code, exitErr)
}

func exitStatus(ps *os.ProcessState) (code int, signal syscall.Signal, signaled bool) {
	if ps == nil {
		// Wait itself failed, treat as an anonymous bad exit
		return -1, 0, false
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal(), true
	}
	return ps.ExitCode(), 0, false
}

// PrematureExitError means the child stopped, as asked or cleanly, before it
// ever announced a port.
type PrematureExitError struct {
	PID int
}

func (e *PrematureExitError) Error() string {
	return fmt.Sprintf("process %d exited before announcing a port", e.PID)
}

// UnexpectedExitError means the child terminated without the supervisor
// asking it to.
type UnexpectedExitError struct {
	PID int
	// Code is the exit status, -1 when the child died to a signal.
	Code int
	// Signal names the fatal signal, empty when the child exited itself.
	Signal string
}

func (e *UnexpectedExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("process %d died to signal %s", e.PID, e.Signal)
	}
	return fmt.Sprintf("process %d exited with status %d", e.PID, e.Code)
}

// cell is a single-assignment slot. The first resolve wins, later resolves
// are no-ops, and every wait observes the one resolution.
type cell struct {
	done chan struct{}
	once sync.Once
	val  int
	err  error
}

func newCell() *cell {
	return &cell{done: make(chan struct{})}
}

func (c *cell) resolve(val int, err error) {
	c.once.Do(func() {
		c.val, c.err = val, err
		close(c.done)
	})
}

func (c *cell) wait(ctx context.Context) (int, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *cell) resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
