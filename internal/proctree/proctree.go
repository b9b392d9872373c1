// Package proctree inspects and terminates a child process together with
// everything it spawned.
package proctree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Info is a short description of a process, used in diagnostics
type Info struct {
	PID        int32
	Name       string
	Cmdline    string
	Status     string
	NumThreads int32
	MemoryMB   float64
	Children   []*Info
}

// String renders the process tree on one line per process.
func (i *Info) String() string {
	var b strings.Builder
	i.write(&b, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func (i *Info) write(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%spid=%d name=%s status=%s threads=%d rss=%.1fMB cmd=%q\n",
		strings.Repeat("  ", depth), i.PID, i.Name, i.Status, i.NumThreads, i.MemoryMB, i.Cmdline)
	for _, c := range i.Children {
		c.write(b, depth+1)
	}
}

// Snapshot collects Info for pid and its descendants. Fields that cannot be
// read (short-lived processes, permissions) are left empty.
func Snapshot(pid int32) (*Info, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("process not found: %w", err)
	}
	return snapshot(p), nil
}

func snapshot(p *process.Process) *Info {
	info := &Info{PID: p.Pid}

	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		info.Status = status[0]
	}
	if n, err := p.NumThreads(); err == nil {
		info.NumThreads = n
	}
	if mem, err := p.MemoryInfo(); err == nil {
		info.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}

	if children, err := p.Children(); err == nil {
		for _, c := range children {
			info.Children = append(info.Children, snapshot(c))
		}
	}

	return info
}

// Kill terminates pid and all of its descendants, deepest first, so that no
// grandchild keeps the child's pipes open.
func Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("process not found: %w", err)
	}
	return kill(p)
}

func kill(p *process.Process) error {
	var errs []error

	// Children() fails with ErrorNoChildren for a leaf
	if children, err := p.Children(); err == nil {
		for _, c := range children {
			if err := kill(c); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := p.Kill(); err != nil && !isGone(err) {
		errs = append(errs, fmt.Errorf("failed to kill pid %d: %w", p.Pid, err))
	}

	return errors.Join(errs...)
}

func isGone(err error) bool {
	return errors.Is(err, process.ErrorProcessNotRunning) ||
		strings.Contains(err.Error(), "no such process") ||
		strings.Contains(err.Error(), "process already finished")
}
