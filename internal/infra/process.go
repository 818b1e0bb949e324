// Package infra implements infrastructure concerns (storage, process, config).
package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes whose name contains any pattern
// (case-insensitive). Processes that exit mid-scan are skipped.
func (pm *ProcessManagerImpl) FindByName(patterns ...string) ([]int, error) {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		name = strings.ToLower(name)
		for _, pattern := range lowered {
			if strings.Contains(name, pattern) {
				found = append(found, int(p.Pid))
				break
			}
		}
	}
	return found, nil
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence only
	return proc.Signal(syscall.Signal(0)) == nil
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)

// BrowserProbe reports whether any configured browser process is alive.
// The daemon treats a dead browser as unfocused even if the extension's
// last focus report said otherwise.
type BrowserProbe struct {
	pm    domain.ProcessManager
	names []string
}

// NewBrowserProbe creates a probe over the given process name patterns.
func NewBrowserProbe(pm domain.ProcessManager, names []string) *BrowserProbe {
	var cleaned []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return &BrowserProbe{pm: pm, names: cleaned}
}

// Running reports whether a browser process is alive. With no names
// configured, or when the process table can't be read, the probe
// does not gate focus and returns true.
func (b *BrowserProbe) Running() bool {
	if len(b.names) == 0 {
		return true
	}
	pids, err := b.pm.FindByName(b.names...)
	if err != nil {
		return true
	}
	return len(pids) > 0
}
