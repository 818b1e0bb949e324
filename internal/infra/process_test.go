package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessManager_IsRunning(t *testing.T) {
	pm := NewProcessManager()
	assert.True(t, pm.IsRunning(os.Getpid()))
	assert.False(t, pm.IsRunning(0))
	assert.False(t, pm.IsRunning(-5))
}

func TestBrowserProbe_Running(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		byName  map[string][]int
		findErr error
		want    bool
	}{
		{
			name:   "browser found",
			names:  []string{"chrome", "firefox"},
			byName: map[string][]int{"firefox": {100}},
			want:   true,
		},
		{
			name:  "no browser process",
			names: []string{"chrome", "firefox"},
			want:  false,
		},
		{
			name:  "no names configured does not gate focus",
			names: []string{" ", ""},
			want:  true,
		},
		{
			name:    "process table unreadable does not gate focus",
			names:   []string{"chrome"},
			findErr: errors.New("permission denied"),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newMockProcessManager()
			if tt.byName != nil {
				pm.byName = tt.byName
			}
			pm.findErr = tt.findErr

			probe := NewBrowserProbe(pm, tt.names)
			assert.Equal(t, tt.want, probe.Running())
			assert.LessOrEqual(t, pm.scans, 1, "one process table scan per probe")
		})
	}
}

func TestProcessManager_FindByName(t *testing.T) {
	pm := NewProcessManager()

	pids, err := pm.FindByName()
	assert.NoError(t, err)
	assert.Empty(t, pids)

	pids, err = pm.FindByName("  ", "")
	assert.NoError(t, err)
	assert.Empty(t, pids)

	// The test binary itself is always in the table.
	self, err := os.Executable()
	if err != nil {
		t.Skip("executable path unavailable")
	}
	name := filepath.Base(self)
	if len(name) > 15 {
		name = name[:15] // comm is truncated on Linux
	}
	pids, err = pm.FindByName("no-such-browser-xyz", strings.ToUpper(name))
	assert.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
}
