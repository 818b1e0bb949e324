package infra

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

const appDirName = ".webmon"

// Paths holds the on-disk locations used by the daemon.
type Paths struct {
	DataDir  string // store, key, registry
	Store    string
	LogFile  string
	ErrFile  string
	Registry string
}

// ResolvePaths returns the paths rooted at dataDir, or at the per-user
// default when dataDir is empty.
func ResolvePaths(dataDir string) Paths {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return Paths{
		DataDir:  dataDir,
		Store:    filepath.Join(dataDir, storeDBName),
		LogFile:  filepath.Join(dataDir, "webmon.log"),
		ErrFile:  filepath.Join(dataDir, "webmon.err.log"),
		Registry: filepath.Join(dataDir, registryFileName),
	}
}

// DefaultDataDir returns ~/.webmon for the real user.
func DefaultDataDir() string {
	return filepath.Join(GetRealUserHome(), appDirName)
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns /var/root, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return os.TempDir()
	}
	return home
}

// writeFileAtomic writes data to a per-process temp file next to path and
// renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
