// Package relay drains the standard streams of an isolated child process,
// forwards ordinary output to the supervising process and picks probe lines
// out of stderr.
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"isotest/pkg/probe"
	"isotest/pkg/reach"
)

var (
	ErrPrefixMismatch = errors.New("unexpected test output prefix")
	ErrUnknownProbe   = errors.New("unknown probe content")
)

// Options controls how probe payloads on stderr are interpreted.
type Options struct {
	ExpectPanic bool
	CheckReach  bool
}

// Result is what the stderr relay collected.
type Result struct {
	Checkpoints []reach.Event
	Panicked    bool
}

// runBanner starts the line a verbose test binary prints when a test or
// subtest starts.
const runBanner = "=== RUN   "

// Banner is the line announcing testName in verbose test output.
func Banner(testName string) string {
	return runBanner + testName + "\n"
}

// Stdout checks that the stream starts with the RUN banners leading to
// testName, then copies every further line to w. Banners of enclosing tests
// may come first, in order. A subtest whose own name contains "/" gets a
// single banner, so the banners cannot be derived from the name alone.
// The banners are not forwarded. On a mismatch the lines read so far are
// forwarded along with the rest of the stream, and ErrPrefixMismatch is
// returned once the stream ends.
func Stdout(r io.Reader, w io.Writer, testName string, tee io.Writer) error {
	br := bufio.NewReader(r)
	want := Banner(testName)

	var (
		seen     strings.Builder
		parent   string
		mismatch error
	)
	for {
		line, err := br.ReadString('\n')
		if line != "" && tee != nil {
			_, _ = io.WriteString(tee, line)
		}
		seen.WriteString(line)
		if line == want {
			break
		}
		if name, ok := enclosing(line, testName); ok && err == nil && len(name) > len(parent) {
			parent = name
			continue
		}

		mismatch = fmt.Errorf("%w: want %q, got %q", ErrPrefixMismatch, want, seen.String())
		_, _ = io.WriteString(w, seen.String())
		break
	}

	forwardLines(br, func(line string) {
		if tee != nil {
			_, _ = io.WriteString(tee, line)
		}
		_, _ = io.WriteString(w, line)
	})

	return mismatch
}

// enclosing returns the test named by a banner line if it is an ancestor
// of testName.
func enclosing(line, testName string) (string, bool) {
	name, ok := strings.CutPrefix(line, runBanner)
	if !ok {
		return "", false
	}
	name = strings.TrimSuffix(name, "\n")
	return name, strings.HasPrefix(testName, name+"/")
}

// Stderr classifies every line of r:
//
//   - not a probe: forwarded to w unchanged
//   - probe with text before it: the text is forwarded
//   - panic payload while a panic is expected: recorded
//   - checkpoint payload while checkpoints are checked: collected
//   - anything else: a protocol violation
//
// After the first violation the remaining lines are forwarded raw so the
// child never blocks on a full pipe. The first violation is returned.
func Stderr(r io.Reader, w io.Writer, opts Options, tee io.Writer) (Result, error) {
	var (
		res       Result
		violation error
	)

	forwardLines(bufio.NewReader(r), func(line string) {
		if tee != nil {
			_, _ = io.WriteString(tee, line)
		}
		if violation != nil {
			_, _ = io.WriteString(w, line)
			return
		}
		violation = res.classify(line, w, opts)
	})

	return res, violation
}

func (res *Result) classify(line string, w io.Writer, opts Options) error {
	text := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

	p, ok, err := probe.Decode(text)
	if err != nil {
		_, _ = io.WriteString(w, line)
		return err
	}
	if !ok {
		_, _ = io.WriteString(w, line)
		return nil
	}

	if p.Prefix != "" {
		_, _ = io.WriteString(w, p.Prefix+"\n")
	}

	if opts.ExpectPanic && p.Payload == probe.PanicPayload {
		res.Panicked = true
		return nil
	}
	if opts.CheckReach {
		if ev, ok := reach.ParseEvent(p.Payload); ok {
			res.Checkpoints = append(res.Checkpoints, ev)
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownProbe, p.Payload)
}

// forwardLines calls fn for every line including its newline. The last line
// may lack one. Any read error ends the stream: after a forced shutdown the
// pipe is closed under the reader.
func forwardLines(br *bufio.Reader, fn func(line string)) {
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fn(line)
		}
		if err != nil {
			return
		}
	}
}
