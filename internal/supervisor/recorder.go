package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"isotest/internal/report"
	"isotest/pkg/transcript"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// recorder writes the child's streams to <dir>/<test>-<run id>.log and the
// outcome next to it.
type recorder struct {
	runID   string
	started time.Time
	logPath string
	file    *os.File
	writer  *transcript.Writer
}

func newRecorder(dir, testName string) (*recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	runID := uuid.NewString()
	path := filepath.Join(dir, unsafeNameChars.ReplaceAllString(testName, "_")+"-"+runID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	return &recorder{
		runID:   runID,
		started: time.Now().UTC(),
		logPath: path,
		file:    f,
		writer:  transcript.NewWriter(f),
	}, nil
}

func (r *recorder) finish(req Request, res *Result, runErr error) error {
	r.writer.Close()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close transcript file: %w", err)
	}

	o := &report.Outcome{
		Test:       req.TestName,
		RunID:      r.runID,
		Started:    r.started,
		Transcript: r.logPath,
	}
	if res != nil {
		o.Duration = res.Duration
		o.PID = res.PID
		o.ExitCode = res.ExitCode
		o.Signal = res.Signal
		o.Panicked = res.Panicked
		for _, ev := range res.Checkpoints {
			o.Checkpoints = append(o.Checkpoints, ev.String())
		}
	}
	if runErr != nil {
		o.Error = runErr.Error()
	}

	base := r.logPath[:len(r.logPath)-len(filepath.Ext(r.logPath))]
	return report.WriteOutcome(base+report.OutcomeSuffix, o)
}
