package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func newTestFileRegistry(t *testing.T) (*FileRegistry, *mockProcessManager) {
	t.Helper()
	pm := newMockProcessManager()
	return NewFileRegistry(t.TempDir(), pm), pm
}

func TestFileRegistry_RegisterAndGet(t *testing.T) {
	reg, _ := newTestFileRegistry(t)

	rec := domain.DaemonRecord{
		PID:        12345,
		BridgeAddr: "127.0.0.1:7878",
		StartedAt:  time.Now().Unix(),
		AppVersion: "0.1.0",
	}
	require.NoError(t, reg.Register(rec))

	got, err := reg.Get()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	info, err := os.Stat(reg.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileRegistry_GetWithoutFile(t *testing.T) {
	reg, _ := newTestFileRegistry(t)

	got, err := reg.Get()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileRegistry_RegisterOverwrites(t *testing.T) {
	reg, _ := newTestFileRegistry(t)

	require.NoError(t, reg.Register(domain.DaemonRecord{PID: 1111, BridgeAddr: "a"}))
	require.NoError(t, reg.Register(domain.DaemonRecord{PID: 2222, BridgeAddr: "b"}))

	got, err := reg.Get()
	require.NoError(t, err)
	assert.Equal(t, 2222, got.PID)
	assert.Equal(t, "b", got.BridgeAddr)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(reg.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileRegistry_RegisterRejectsInvalidPID(t *testing.T) {
	reg, _ := newTestFileRegistry(t)
	assert.Error(t, reg.Register(domain.DaemonRecord{PID: 0}))
}

func TestFileRegistry_CorruptFile(t *testing.T) {
	reg, _ := newTestFileRegistry(t)
	require.NoError(t, os.WriteFile(reg.Path(), []byte("{not json"), 0600))

	_, err := reg.Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt registry file")
}

func TestFileRegistry_IsAlive(t *testing.T) {
	tests := []struct {
		name     string
		register bool
		running  bool
		want     bool
	}{
		{name: "nothing registered", register: false, want: false},
		{name: "registered and running", register: true, running: true, want: true},
		{name: "registered but dead", register: true, running: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, pm := newTestFileRegistry(t)
			if tt.register {
				require.NoError(t, reg.Register(domain.DaemonRecord{PID: 4242}))
				pm.SetRunning(4242, tt.running)
			}

			alive, err := reg.IsAlive()
			require.NoError(t, err)
			assert.Equal(t, tt.want, alive)
		})
	}
}

func TestFileRegistry_Clear(t *testing.T) {
	reg, _ := newTestFileRegistry(t)
	require.NoError(t, reg.Register(domain.DaemonRecord{PID: 1}))

	require.NoError(t, reg.Clear())
	got, err := reg.Get()
	require.NoError(t, err)
	assert.Nil(t, got)

	// Clearing twice is fine
	assert.NoError(t, reg.Clear())
}
