package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"

	"isotest/pkg/transcript"
)

// maxExcerptLines limits the stderr excerpt shown per failed run.
const maxExcerptLines = 20

// Markdown renders a summary table followed by one section per failure.
// Stderr excerpts are read from the transcripts when they still exist.
func Markdown(outcomes []*Outcome) string {
	var b strings.Builder

	passed := 0
	for _, o := range outcomes {
		if o.Passed() {
			passed++
		}
	}

	fmt.Fprintf(&b, "# Isolated test runs\n\n%d of %d passed.\n\n", passed, len(outcomes))
	b.WriteString("| Test | Result | Exit | Duration | Checkpoints |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, o := range outcomes {
		result := "pass"
		if !o.Passed() {
			result = "**FAIL**"
		}
		exit := fmt.Sprint(o.ExitCode)
		if o.Signal != "" {
			exit = o.Signal
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			o.Test, result, exit, o.Duration.Round(time.Millisecond), strings.Join(o.Checkpoints, " "))
	}

	for _, o := range outcomes {
		if o.Passed() {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", o.Test, o.Error)
		if excerpt := stderrExcerpt(o.Transcript); excerpt != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", excerpt)
		}
	}

	return b.String()
}

func stderrExcerpt(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	chunks, err := transcript.Read(f)
	if err != nil && len(chunks) == 0 {
		return ""
	}

	text := strings.TrimRight(string(transcript.Streams(chunks)["stderr"]), "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > maxExcerptLines {
		lines = lines[len(lines)-maxExcerptLines:]
	}
	// Keep the fence intact whatever the child printed
	return strings.ReplaceAll(strings.Join(lines, "\n"), "```", "'''")
}

// HTML converts markdown to sanitized HTML. Reports embed child output,
// which is untrusted.
func HTML(markdown string) string {
	unsafeHTML := blackfriday.Run(
		[]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.AutoHeadingIDs),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2")

	return string(policy.SanitizeBytes(unsafeHTML))
}
