package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// StartDetached spawns `<self> run <args...>` as a background process
// detached from the terminal. Returns the child PID.
func StartDetached(args ...string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, err
	}

	cmd := detachedCommand(executable, args)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// The child outlives us; don't keep a handle on it.
	_ = cmd.Process.Release()
	return pid, nil
}

func detachedCommand(executable string, args []string) *exec.Cmd {
	cmd := exec.Command(executable, append([]string{"run"}, args...)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - the daemon logs to its own files
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}
