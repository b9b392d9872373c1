// Package supervisor runs one test in a fresh copy of the test binary and
// judges the child by its exit status and by the probes on its stderr.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"isotest/internal/proctree"
	"isotest/internal/relay"
	"isotest/pkg/reach"
)

var (
	ErrTimeout         = errors.New("timeout exceeded")
	ErrSignaled        = errors.New("test process was terminated by a signal")
	ErrExitCode        = errors.New("unexpected exit code")
	ErrPanicExpected   = errors.New("test was expected to panic but did not")
	ErrUnexpectedPanic = errors.New("panic probe without an expected panic")
)

// drainGrace bounds how long the relays may keep reading after the child
// is gone. A descendant that inherited the pipes can hold them open longer.
const drainGrace = time.Second

// minDrainGrace leaves the relays time to read what an exited child
// buffered in the pipes, even when its timeout is nearly used up.
const minDrainGrace = 100 * time.Millisecond

// Request describes one isolated run.
type Request struct {
	// TestName is (*testing.T).Name() of the test to run.
	TestName string

	// Executable defaults to the running binary.
	Executable string
	ExtraArgs  []string
	ExtraEnv   []string

	// Timeout bounds the wait for the child; zero waits forever.
	Timeout        time.Duration
	ExpectPanic    bool
	ExitCode       int32
	CheckReach     bool
	IncludeIgnored bool

	// Stdout and Stderr receive forwarded child output; default to the
	// supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// TranscriptDir, when set, records the child's streams and the outcome.
	TranscriptDir string

	Logger *slog.Logger
}

// Result is what was observed about the child.
type Result struct {
	PID         int
	ExitCode    int
	Signal      string
	Panicked    bool
	Checkpoints []reach.Event
	Duration    time.Duration
	Transcript  string
}

// Run spawns the child, relays its output and checks the outcome. A nil
// error means exit code, panic expectation and checkpoint order all held.
// The Result is returned even on failure, as far as it was observed.
func Run(ctx context.Context, req Request) (*Result, error) {
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if req.Stdout == nil {
		req.Stdout = os.Stdout
	}
	if req.Stderr == nil {
		req.Stderr = os.Stderr
	}

	exe := req.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot get the path of the current executable: %w", err)
		}
	}

	rec, err := newRecorder(req.TranscriptDir, req.TestName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, runErr := run(ctx, logger, exe, req, rec)
	if res != nil {
		res.Duration = time.Since(start)
	}

	if rec != nil {
		if err := rec.finish(req, res, runErr); err != nil {
			logger.Error("Failed to write transcript", "error", err, "test", req.TestName)
		}
		if res != nil {
			res.Transcript = rec.logPath
		}
	}

	return res, runErr
}

func run(ctx context.Context, logger *slog.Logger, exe string, req Request, rec *recorder) (*Result, error) {
	cmd := exec.Command(exe, Args(req)...)
	cmd.Env = append(os.Environ(), ChildEnv+"=1")
	cmd.Env = append(cmd.Env, req.ExtraEnv...)

	// Own pipes instead of StdoutPipe: Wait must not close the read ends
	// before the relays are done with them.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	defer func() { _ = stdoutR.Close() }()
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	defer func() { _ = stderrR.Close() }()

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to fork a child: %w", err)
	}

	res := &Result{PID: cmd.Process.Pid}
	logger.Debug("Spawned isolated test", "test", req.TestName, "pid", res.PID, "args", cmd.Args[1:])

	relayCfg := relay.Config{
		TestName: req.TestName,
		Options:  relay.Options{ExpectPanic: req.ExpectPanic, CheckReach: req.CheckReach},
		Stdout:   req.Stdout,
		Stderr:   req.Stderr,
	}
	if rec != nil {
		relayCfg.Transcript = rec.writer
	}
	relays := relay.Start(stdoutR, stderrR, relayCfg)
	started := time.Now()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	waitCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	select {
	case err = <-waitErr:
	case <-waitCtx.Done():
		if info, snapErr := proctree.Snapshot(int32(res.PID)); snapErr == nil {
			logger.Warn("Killing isolated test", "test", req.TestName, "tree", info.String())
		}
		if killErr := proctree.Kill(int32(res.PID)); killErr != nil {
			logger.Error("Failed to kill isolated test", "error", killErr, "pid", res.PID)
			_ = cmd.Process.Kill()
		}
		<-waitErr
		drain(relays, drainGrace, stdoutR, stderrR)

		if ctx.Err() != nil {
			return res, fmt.Errorf("isolated test %s: %w", req.TestName, ctx.Err())
		}
		return res, fmt.Errorf("%w: Timeout(%s) for %s", ErrTimeout, req.Timeout, req.TestName)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		drain(relays, drainGrace, stdoutR, stderrR)
		return res, fmt.Errorf("failed to wait for child: %w", err)
	}

	res.ExitCode = cmd.ProcessState.ExitCode()
	if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		res.Signal = status.Signal().String()
	}
	logger.Debug("Isolated test exited", "test", req.TestName, "pid", res.PID, "exit_code", res.ExitCode, "signal", res.Signal)

	report, forced := drain(relays, graceLeft(req.Timeout, started), stdoutR, stderrR)
	if forced {
		logger.Warn("Closed output pipes still held open after the isolated test exited",
			"test", req.TestName, "pid", res.PID)
	}
	res.Panicked = report.Panicked
	res.Checkpoints = report.Checkpoints

	return res, judge(req, res, report)
}

// judge checks the observations in a fixed order and reports the first
// violation.
func judge(req Request, res *Result, report relay.Report) error {
	if report.PrefixErr != nil {
		return report.PrefixErr
	}
	if res.Signal != "" {
		return fmt.Errorf("%w: %s", ErrSignaled, res.Signal)
	}

	expected := int(req.ExitCode)
	if req.ExpectPanic {
		expected = 0
	}
	if res.ExitCode != expected {
		return fmt.Errorf("%w: got %d, want %d", ErrExitCode, res.ExitCode, expected)
	}

	if report.ProbeErr != nil {
		return report.ProbeErr
	}

	if req.ExpectPanic && !res.Panicked {
		return ErrPanicExpected
	}
	if !req.ExpectPanic && res.Panicked {
		return ErrUnexpectedPanic
	}

	if req.CheckReach {
		if err := reach.Validate(res.Checkpoints); err != nil {
			return err
		}
	}

	return nil
}

// graceLeft is how long the relays may drain after a normal exit: at most
// drainGrace, and no longer than what is left of the timeout.
func graceLeft(timeout time.Duration, started time.Time) time.Duration {
	if timeout <= 0 {
		return drainGrace
	}
	left := timeout - time.Since(started)
	return min(drainGrace, max(left, minDrainGrace))
}

// drain joins the relays. Pipes still held open after grace, by an
// orphaned descendant of the child, are closed under the relays; forced
// reports whether that happened.
func drain(relays *relay.Relay, grace time.Duration, pipes ...io.Closer) (report relay.Report, forced bool) {
	done := make(chan relay.Report, 1)
	go func() {
		done <- relays.Wait()
	}()

	select {
	case report = <-done:
		return report, false
	case <-time.After(grace):
		for _, p := range pipes {
			_ = p.Close()
		}
		return <-done, true
	}
}
