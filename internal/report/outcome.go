// Package report stores the outcome of isolated runs next to their
// transcripts and renders summaries of them.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutcomeSuffix is appended to a transcript's base name.
const OutcomeSuffix = ".outcome.yaml"

// Outcome of one isolated run
type Outcome struct {
	Test        string        `yaml:"test"`
	RunID       string        `yaml:"run_id"`
	Started     time.Time     `yaml:"started"`
	Duration    time.Duration `yaml:"duration"`
	PID         int           `yaml:"pid"`
	ExitCode    int           `yaml:"exit_code"`
	Signal      string        `yaml:"signal,omitempty"`
	Panicked    bool          `yaml:"panicked"`
	Checkpoints []string      `yaml:"checkpoints,omitempty"`
	Error       string        `yaml:"error,omitempty"`
	Transcript  string        `yaml:"transcript"`
}

// Passed reports whether the run met all expectations.
func (o *Outcome) Passed() bool {
	return o.Error == ""
}

// WriteOutcome stores o as YAML at path.
func WriteOutcome(path string, o *Outcome) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write outcome file: %w", err)
	}
	return nil
}

// ReadOutcome loads one outcome file.
func ReadOutcome(path string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outcome file: %w", err)
	}
	var o Outcome
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &o, nil
}

// Load reads every outcome in dir, oldest first.
func Load(dir string) ([]*Outcome, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var outcomes []*Outcome
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), OutcomeSuffix) {
			continue
		}
		o, err := ReadOutcome(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Started.Before(outcomes[j].Started)
	})
	return outcomes, nil
}
