package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"isotest/internal/report"
	"isotest/pkg/probe"
	"isotest/pkg/reach"
	"isotest/pkg/transcript"

	"github.com/spf13/cobra"
)

var (
	streamName string
	asHTML     bool
)

var rootCmd = &cobra.Command{
	Use:   "isotest",
	Short: "isotest - inspect isolated test runs",
	Long: `isotest inspects what isolated Go tests leave behind: stderr captures
carrying probes, recorded transcripts and outcome reports.

Transcripts are recorded when ISOTEST_TRANSCRIPT_DIR is set while the tests run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode the probes in a stderr capture",
	Long: `Read a child's stderr (from file, or stdin) and print every probe it
carries together with what the supervisor makes of it. Ordinary lines are
skipped. Fails if a line carries a malformed probe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open capture: %w", err)
			}
			defer func() { _ = f.Close() }()
			in = f
		}
		return decode(in, cmd.OutOrStdout())
	},
}

func decode(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	malformed := 0
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		p, ok, err := probe.Decode(line)
		if err != nil {
			fmt.Fprintf(out, "%d: %v\n", n, err)
			malformed++
			continue
		}
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%d: prefix=%q payload=%q %s\n", n, p.Prefix, p.Payload, describe(p.Payload))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}
	if malformed > 0 {
		return fmt.Errorf("%d malformed probe(s)", malformed)
	}
	return nil
}

func describe(payload string) string {
	if payload == probe.PanicPayload {
		return "(panic)"
	}
	ev, ok := reach.ParseEvent(payload)
	if !ok {
		return "(unknown)"
	}
	switch ev.Kind {
	case reach.KindLast:
		return "(checkpoint: last)"
	case reach.KindNever:
		return "(checkpoint: never)"
	default:
		return fmt.Sprintf("(checkpoint: %d)", ev.N)
	}
}

var reachCmd = &cobra.Command{
	Use:   "reach event...",
	Short: "Check a checkpoint sequence",
	Long: `Check whether a sequence of checkpoints would be accepted, for example:

  isotest reach 0 1 '$'

Events are numbers for nth, '$' for last and '!' for never.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		events := make([]reach.Event, 0, len(args))
		for _, arg := range args {
			ev, ok := reach.ParseEvent(arg)
			if !ok {
				return fmt.Errorf("invalid checkpoint %q", arg)
			}
			events = append(events, ev)
		}
		if err := reach.Validate(events); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript file",
	Short: "Print a recorded transcript",
	Long: `Print a transcript recorded by the supervisor. With --stream only the raw
content of that stream is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer func() { _ = f.Close() }()

		chunks, err := transcript.Read(f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if streamName != "" {
			_, err := out.Write(transcript.Streams(chunks)[streamName])
			return err
		}
		for _, c := range chunks {
			fmt.Fprintf(out, "%s %s | %s", c.Timestamp.Format("15:04:05.000"), c.Stream, c.Data)
			if len(c.Data) == 0 || c.Data[len(c.Data)-1] != '\n' {
				fmt.Fprintln(out)
			}
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report dir",
	Short: "Summarize the recorded outcomes in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcomes, err := report.Load(args[0])
		if err != nil {
			return err
		}
		md := report.Markdown(outcomes)
		if asHTML {
			md = report.HTML(md)
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	transcriptCmd.Flags().StringVar(&streamName, "stream", "", "Only print this stream (stdout or stderr)")
	reportCmd.Flags().BoolVar(&asHTML, "html", false, "Render the report as sanitized HTML")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(reachCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
