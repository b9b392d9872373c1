package isotest

import (
	"flag"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"isotest/internal/config"
	"isotest/internal/observability"
	"isotest/internal/supervisor"
	"isotest/pkg/probe"
	"isotest/pkg/reach"
)

// DefaultTimeout bounds a child when the config comes from DefaultConfig.
const DefaultTimeout = 5 * time.Second

var includeIgnored = flag.Bool(supervisor.IgnoredFlag, false, "run isolated tests marked as ignored")

// Swapped in tests.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// Expectation is how the child is expected to end: with an exit code, or
// with a panic in the test body.
type Expectation struct {
	code  int32
	panic bool
}

// ExitCode expects the child to exit with code. The zero Expectation is
// ExitCode(0).
func ExitCode(code int32) Expectation {
	return Expectation{code: code}
}

// Panic expects the test body to panic.
func Panic() Expectation {
	return Expectation{panic: true}
}

func (e Expectation) String() string {
	if e.panic {
		return "panic"
	}
	return fmt.Sprintf("exit code %d", e.code)
}

// Config describes one isolated test. It is passed by value and not
// modified.
type Config struct {
	// Ignore skips the test unless ignored tests were requested with
	// -isotest.ignored or ISOTEST_INCLUDE_IGNORED.
	Ignore bool

	// Timeout bounds the child's run time. Zero means no bound.
	Timeout time.Duration

	// CheckReach enables the reach package in the child and validates
	// the reported checkpoints.
	CheckReach bool

	Expect Expectation

	// ParentShouldFail inverts the result: the test passes only when the
	// supervisor reports a failure.
	ParentShouldFail bool
}

// DefaultConfig returns a Config expecting exit code 0 within
// DefaultTimeout.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout}
}

// IsChild reports whether the current process is an isolated child.
func IsChild() bool {
	_, ok := os.LookupEnv(supervisor.ChildEnv)
	return ok
}

// Run runs body in a child process. It takes the child branch when called
// inside a child, and the parent branch otherwise.
func Run(t *testing.T, cfg Config, body func(t *testing.T)) {
	t.Helper()
	if IsChild() {
		RunChild(t, cfg, body)
		return
	}
	RunParent(t, cfg)
}

// RunParent spawns a child for t and fails t when the child's outcome does
// not match cfg.
func RunParent(t *testing.T, cfg Config) {
	t.Helper()

	settings, err := config.Load()
	if err != nil {
		t.Fatalf("isotest: %v", err)
	}

	if cfg.Ignore && !*includeIgnored && !settings.IncludeIgnored {
		t.Skipf("ignored, run with -%s to include", supervisor.IgnoredFlag)
	}

	logger, err := observability.NewLogger(observability.Config{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
	})
	if err != nil {
		t.Fatalf("isotest: %v", err)
	}

	_, err = supervisor.Run(t.Context(), supervisor.Request{
		TestName:       t.Name(),
		Timeout:        scaleTimeout(cfg.Timeout, settings.TimeoutScale),
		ExpectPanic:    cfg.Expect.panic,
		ExitCode:       cfg.Expect.code,
		CheckReach:     cfg.CheckReach,
		IncludeIgnored: cfg.Ignore,
		TranscriptDir:  settings.TranscriptDir,
		Logger:         logger,
	})

	if cfg.ParentShouldFail {
		if err == nil {
			t.Fatalf("isolated test passed, expected its supervisor to fail (expect: %s)", cfg.Expect)
		}
		t.Logf("supervisor failed as expected: %v", err)
		return
	}
	if err != nil {
		t.Fatal(err)
	}
}

// RunChild runs body in the current process and exits it. With an expected
// panic, the panic is recovered and reported to the parent as a probe;
// otherwise it is left to the testing package, which exits non-zero.
func RunChild(t *testing.T, cfg Config, body func(t *testing.T)) {
	if cfg.CheckReach {
		reach.Enable()
	}

	if cfg.Expect.panic {
		runRecovering(t, body)
	} else {
		body(t)
	}

	// A body that stopped with t.FailNow or t.SkipNow does not get here.
	if t.Failed() {
		exit(1)
		return
	}
	exit(0)
}

func runRecovering(t *testing.T, body func(t *testing.T)) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "panic: %v\n", r)
			_ = probe.Fprintln(stderr, probe.PanicPayload)
		}
	}()
	body(t)
}

func scaleTimeout(d time.Duration, scale float64) time.Duration {
	if d <= 0 || scale <= 1 {
		return d
	}
	return time.Duration(float64(d) * scale)
}
