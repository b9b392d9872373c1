package reach

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"isotest/pkg/probe"
)

// enabled is set once, by the child entry point of a test that asked for
// checkpoint checking. One test runs per child process.
var enabled atomic.Bool

// output is where probes go; the supervisor reads the child's stderr.
var output io.Writer = os.Stderr

// Enable allows Nth, Last and Never for the rest of the process.
func Enable() {
	enabled.Store(true)
}

// Enabled reports whether checkpoint checking is on in this process.
func Enabled() bool {
	return enabled.Load()
}

// Nth marks checkpoint n. Checkpoints must be reached as 0, 1, 2, ...
func Nth(n uint16) {
	emit(NthEvent(n))
}

// Last marks the final checkpoint. A checked test fails if it is not reached.
func Last() {
	emit(LastEvent())
}

// Never marks a point that must not be reached.
func Never() {
	emit(NeverEvent())
}

func emit(ev Event) {
	if !enabled.Load() {
		panic("reach functions may only be called in isolated tests with CheckReach set")
	}
	if err := probe.Fprintln(output, ev.String()); err != nil {
		panic(fmt.Sprintf("failed to write reach probe: %v", err))
	}
}
