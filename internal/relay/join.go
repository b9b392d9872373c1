package relay

import (
	"io"

	"isotest/pkg/transcript"
)

// Config describes one pair of relays for a child process.
type Config struct {
	// TestName selects the RUN banners expected at the start of stdout.
	TestName string
	Options

	// Destinations for forwarded output, normally the supervisor's own
	// stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Transcript receives every raw line when set.
	Transcript *transcript.Writer
}

// Report is the joined outcome of both relays.
type Report struct {
	Result
	PrefixErr error
	ProbeErr  error
}

// Relay runs the stdout and stderr readers concurrently.
type Relay struct {
	stdoutDone chan error
	stderrDone chan stderrOutcome
}

type stderrOutcome struct {
	res Result
	err error
}

// Start launches both readers. They run until their stream reaches end of
// input, which happens when the child and everything holding its pipes
// have exited.
func Start(stdout, stderr io.Reader, cfg Config) *Relay {
	r := &Relay{
		stdoutDone: make(chan error, 1),
		stderrDone: make(chan stderrOutcome, 1),
	}

	var stdoutTee, stderrTee io.Writer
	if cfg.Transcript != nil {
		stdoutTee = cfg.Transcript.StreamWriter("stdout")
		stderrTee = cfg.Transcript.StreamWriter("stderr")
	}

	go func() {
		r.stdoutDone <- Stdout(stdout, cfg.Stdout, cfg.TestName, stdoutTee)
	}()

	go func() {
		res, err := Stderr(stderr, cfg.Stderr, cfg.Options, stderrTee)
		r.stderrDone <- stderrOutcome{res: res, err: err}
	}()

	return r
}

// Wait blocks until both streams are drained.
func (r *Relay) Wait() Report {
	prefixErr := <-r.stdoutDone
	out := <-r.stderrDone
	return Report{Result: out.res, PrefixErr: prefixErr, ProbeErr: out.err}
}
