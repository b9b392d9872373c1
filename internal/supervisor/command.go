package supervisor

import (
	"regexp"
	"strings"
)

// ChildEnv marks a process as an isolated child. Only its presence matters.
const ChildEnv = "ISOTEST_CHILD_353887F6_A130_11EB_AAD1_54B203047EBD"

// IgnoredFlag is the test binary flag that runs tests marked as ignored.
const IgnoredFlag = "isotest.ignored"

// Selector builds a -test.run pattern matching exactly the test with the
// given (*testing.T).Name(), one anchored element per subtest level.
func Selector(testName string) string {
	segments := strings.Split(testName, "/")
	for i, s := range segments {
		segments[i] = "^" + regexp.QuoteMeta(s) + "$"
	}
	return strings.Join(segments, "/")
}

// Args returns the arguments that make the test binary run exactly one
// test, alone, with its output streamed.
func Args(req Request) []string {
	args := []string{
		"-test.run=" + Selector(req.TestName),
		"-test.v=true",
		"-test.parallel=1",
		"-test.count=1",
	}
	if req.IncludeIgnored {
		args = append(args, "-"+IgnoredFlag)
	}
	return append(args, req.ExtraArgs...)
}
