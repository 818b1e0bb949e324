package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const registryFileName = "daemon.json"

// FileRegistry implements domain.DaemonRegistry using a JSON file in the
// data directory. CLI commands read it to find the bridge address.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry stored under dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) *FileRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, registryFileName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register saves the running daemon's record.
func (r *FileRegistry) Register(rec domain.DaemonRecord) error {
	if rec.PID <= 0 {
		return fmt.Errorf("invalid pid %d", rec.PID)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	return r.atomicWrite(&rec)
}

// Get returns the registered record, or nil if nothing is registered.
func (r *FileRegistry) Get() (*domain.DaemonRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rec domain.DaemonRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt registry file: %w", err)
	}
	return &rec, nil
}

// IsAlive checks if the registered daemon is running via PID.
func (r *FileRegistry) IsAlive() (bool, error) {
	rec, err := r.Get()
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return r.processManager.IsRunning(rec.PID), nil
}

// Clear removes the registry file. A missing file is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes the record to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(rec *domain.DaemonRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, data, 0600)
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
