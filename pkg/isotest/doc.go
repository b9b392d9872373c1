// Package isotest runs a Go test in its own process.
//
// A test opts in by wrapping its body:
//
//	func TestShutdown(t *testing.T) {
//		isotest.Run(t, isotest.Config{Expect: isotest.ExitCode(3)}, func(t *testing.T) {
//			shutdown(3)
//		})
//	}
//
// The outer invocation (parent mode) re-executes the test binary so that it
// runs exactly this test, with an environment marker set. Inside that child
// the same call takes the child branch and runs the body. The parent relays
// the child's stdout and stderr and fails the test when the child exits
// with an unexpected code, is killed by a signal, overruns its timeout,
// panics unexpectedly or reports checkpoints out of order.
//
// Checkpoints are reported with the reach package and are only allowed
// when Config.CheckReach is set.
package isotest
