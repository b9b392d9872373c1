package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"isotest/internal/report"
	"isotest/internal/relay"
	"isotest/pkg/probe"
	"isotest/pkg/reach"
	"isotest/pkg/transcript"
)

const helperEnv = "SUPERVISOR_TEST_HELPER"

// TestHelperChild is the child side of the tests below. It only does
// something when started by Run.
func TestHelperChild(t *testing.T) {
	if os.Getenv(ChildEnv) == "" {
		t.Skip("helper process")
	}

	switch os.Getenv(helperEnv) {
	case "ok":
		fmt.Println("hello from the child")
	case "exit12":
		os.Exit(12)
	case "panic":
		fmt.Fprintln(os.Stderr, "panic: boom")
		_ = probe.Fprintln(os.Stderr, probe.PanicPayload)
	case "reach":
		fmt.Fprint(os.Stderr, "working...")
		_ = probe.Fprintln(os.Stderr, reach.NthEvent(0).String())
		_ = probe.Fprintln(os.Stderr, reach.NthEvent(1).String())
		_ = probe.Fprintln(os.Stderr, reach.LastEvent().String())
	case "reach-gap":
		_ = probe.Fprintln(os.Stderr, reach.NthEvent(0).String())
		_ = probe.Fprintln(os.Stderr, reach.NthEvent(2).String())
		_ = probe.Fprintln(os.Stderr, reach.LastEvent().String())
	case "unknown-probe":
		_ = probe.Fprintln(os.Stderr, "zzz")
	case "sleep":
		time.Sleep(30 * time.Second)
	case "orphan":
		// The grandchild shares our stdout and stderr and outlives us.
		cmd := exec.Command("sleep", "30")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			os.Exit(3)
		}
		fmt.Fprintf(os.Stderr, "orphan pid=%d\n", cmd.Process.Pid)
	case "signal":
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Kill()
		time.Sleep(5 * time.Second)
	}
	os.Exit(0)
}

// TestHelperNoisy prints before its subtest starts, which breaks the
// expected stdout prefix of TestHelperNoisy/child.
func TestHelperNoisy(t *testing.T) {
	if os.Getenv(ChildEnv) == "" {
		t.Skip("helper process")
	}
	fmt.Println("noise")
	t.Run("child", func(t *testing.T) {
		os.Exit(0)
	})
}

func runHelper(t *testing.T, mode string, req Request) (*Result, string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if req.TestName == "" {
		req.TestName = "TestHelperChild"
	}
	req.ExtraEnv = append(req.ExtraEnv, helperEnv+"="+mode)
	req.Stdout = &stdout
	req.Stderr = &stderr
	if req.Timeout == 0 {
		req.Timeout = 30 * time.Second
	}

	res, err := Run(context.Background(), req)
	return res, stdout.String(), stderr.String(), err
}

func TestRun_Pass(t *testing.T) {
	res, stdout, _, err := runHelper(t, "ok", Request{})

	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.NotZero(t, res.PID)
	require.Contains(t, stdout, "hello from the child")
	require.NotContains(t, stdout, "=== RUN", "the prefix is consumed")
}

func TestRun_ExitCode(t *testing.T) {
	res, _, _, err := runHelper(t, "exit12", Request{ExitCode: 12})
	require.NoError(t, err)
	require.Equal(t, 12, res.ExitCode)

	_, _, _, err = runHelper(t, "exit12", Request{})
	require.ErrorIs(t, err, ErrExitCode)
	require.Contains(t, err.Error(), "got 12, want 0")

	_, _, _, err = runHelper(t, "exit12", Request{ExpectPanic: true})
	require.ErrorIs(t, err, ErrExitCode)
}

func TestRun_Panic(t *testing.T) {
	res, _, stderr, err := runHelper(t, "panic", Request{ExpectPanic: true})
	require.NoError(t, err)
	require.True(t, res.Panicked)
	require.Contains(t, stderr, "panic: boom")
	require.NotContains(t, stderr, probe.Marker)

	_, _, _, err = runHelper(t, "ok", Request{ExpectPanic: true})
	require.ErrorIs(t, err, ErrPanicExpected)

	_, _, _, err = runHelper(t, "panic", Request{})
	require.ErrorIs(t, err, relay.ErrUnknownProbe)
}

func TestRun_Reach(t *testing.T) {
	res, _, stderr, err := runHelper(t, "reach", Request{CheckReach: true})
	require.NoError(t, err)
	require.Equal(t, []reach.Event{reach.NthEvent(0), reach.NthEvent(1), reach.LastEvent()}, res.Checkpoints)
	require.Contains(t, stderr, "working...\n")

	_, _, _, err = runHelper(t, "reach-gap", Request{CheckReach: true})
	require.ErrorIs(t, err, reach.ErrBadOrder)

	_, _, _, err = runHelper(t, "ok", Request{CheckReach: true})
	require.ErrorIs(t, err, reach.ErrBadOrder, "an empty sequence never reached Last")
}

func TestRun_UnknownProbe(t *testing.T) {
	_, _, _, err := runHelper(t, "unknown-probe", Request{CheckReach: true})

	require.ErrorIs(t, err, relay.ErrUnknownProbe)
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, _, _, err := runHelper(t, "sleep", Request{Timeout: 100 * time.Millisecond})

	require.ErrorIs(t, err, ErrTimeout)
	require.Contains(t, err.Error(), "100ms")
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, Request{
		TestName: "TestHelperChild",
		ExtraEnv: []string{helperEnv + "=sleep"},
		Stdout:   &bytes.Buffer{},
		Stderr:   &bytes.Buffer{},
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestRun_Signal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no signals on windows")
	}

	res, _, _, err := runHelper(t, "signal", Request{})

	require.ErrorIs(t, err, ErrSignaled)
	require.NotEmpty(t, res.Signal)
}

func TestRun_OrphanHoldingPipes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep")
	}

	start := time.Now()
	res, _, stderr, err := runHelper(t, "orphan", Request{Timeout: 2 * time.Second})

	var orphan int
	if _, scanErr := fmt.Sscanf(stderr, "orphan pid=%d", &orphan); scanErr == nil {
		t.Cleanup(func() {
			if p, err := os.FindProcess(orphan); err == nil {
				_ = p.Kill()
			}
		})
	}

	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.NotZero(t, orphan, "output written before exit is relayed")
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestGraceLeft(t *testing.T) {
	require.Equal(t, drainGrace, graceLeft(0, time.Now()))
	require.Equal(t, drainGrace, graceLeft(time.Minute, time.Now()))
	require.Equal(t, minDrainGrace, graceLeft(time.Second, time.Now().Add(-time.Hour)))

	left := graceLeft(500*time.Millisecond, time.Now())
	require.LessOrEqual(t, left, 500*time.Millisecond)
	require.GreaterOrEqual(t, left, minDrainGrace)
}

func TestRun_PrefixMismatch(t *testing.T) {
	_, stdout, _, err := runHelper(t, "ok", Request{TestName: "TestHelperNoisy/child"})

	require.ErrorIs(t, err, relay.ErrPrefixMismatch)
	require.Contains(t, stdout, "noise")
}

func TestRun_Transcript(t *testing.T) {
	dir := t.TempDir()

	res, _, _, err := runHelper(t, "reach", Request{CheckReach: true, TranscriptDir: dir})
	require.NoError(t, err)
	require.FileExists(t, res.Transcript)
	require.Equal(t, dir, filepath.Dir(res.Transcript))

	f, err := os.Open(res.Transcript)
	require.NoError(t, err)
	defer f.Close()
	chunks, err := transcript.Read(f)
	require.NoError(t, err)
	streams := transcript.Streams(chunks)
	require.Contains(t, string(streams["stdout"]), "=== RUN   TestHelperChild")
	require.Contains(t, string(streams["stderr"]), probe.Marker)

	outcomes, err := report.Load(dir)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, "TestHelperChild", outcomes[0].Test)
	require.True(t, outcomes[0].Passed())
	require.Equal(t, []string{"0", "1", "$"}, outcomes[0].Checkpoints)
	require.Equal(t, res.PID, outcomes[0].PID)
}

func TestRun_MissingExecutable(t *testing.T) {
	_, err := Run(context.Background(), Request{
		TestName:   "TestHelperChild",
		Executable: filepath.Join(t.TempDir(), "does-not-exist"),
	})

	require.ErrorContains(t, err, "failed to fork a child")
}

func TestJudge_Order(t *testing.T) {
	prefixErr := fmt.Errorf("%w: x", relay.ErrPrefixMismatch)
	probeErr := fmt.Errorf("%w: x", relay.ErrUnknownProbe)

	err := judge(Request{}, &Result{Signal: "killed"}, relay.Report{PrefixErr: prefixErr})
	require.ErrorIs(t, err, relay.ErrPrefixMismatch)

	err = judge(Request{}, &Result{Signal: "killed", ExitCode: -1}, relay.Report{})
	require.ErrorIs(t, err, ErrSignaled)

	err = judge(Request{}, &Result{ExitCode: 3}, relay.Report{ProbeErr: probeErr})
	require.ErrorIs(t, err, ErrExitCode)

	err = judge(Request{ExpectPanic: true}, &Result{}, relay.Report{ProbeErr: probeErr})
	require.ErrorIs(t, err, relay.ErrUnknownProbe)

	err = judge(Request{}, &Result{Panicked: true}, relay.Report{})
	require.ErrorIs(t, err, ErrUnexpectedPanic)

	err = judge(Request{CheckReach: true}, &Result{Checkpoints: []reach.Event{reach.NeverEvent()}}, relay.Report{})
	require.ErrorIs(t, err, reach.ErrNeverReached)

	require.NoError(t, judge(Request{ExitCode: 7}, &Result{ExitCode: 7}, relay.Report{}))
}
