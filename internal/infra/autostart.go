package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

// AutostartLabel is the launchd label of the webmon LaunchAgent.
const AutostartLabel = "com.focusd.webmon"

// LaunchAgent plist template (runs as user, restarted if it crashes)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>run</string>
        <string>--data-dir</string>
        <string>{{.DataDir}}</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

type plistConfig struct {
	Label          string
	ExecutablePath string
	DataDir        string
	LogPath        string
	ErrorLogPath   string
}

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(name string, args ...string) error
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (RealCommandRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Autostart installs webmon as a login LaunchAgent so `webmon run` comes
// back after a reboot or crash.
type Autostart struct {
	paths     Paths
	plistDir  string
	plistPath string
	runner    CommandRunner
}

// NewAutostart targets ~/Library/LaunchAgents of the real user.
func NewAutostart(paths Paths) *Autostart {
	dir := filepath.Join(GetRealUserHome(), "Library", "LaunchAgents")
	return NewAutostartWithDeps(paths, dir, RealCommandRunner{})
}

// NewAutostartWithDeps allows overriding the plist directory and launchctl (for testing).
func NewAutostartWithDeps(paths Paths, plistDir string, runner CommandRunner) *Autostart {
	return &Autostart{
		paths:     paths,
		plistDir:  plistDir,
		plistPath: filepath.Join(plistDir, AutostartLabel+".plist"),
		runner:    runner,
	}
}

// PlistPath returns the plist file path.
func (a *Autostart) PlistPath() string {
	return a.plistPath
}

// render creates plist content for the given executable.
func (a *Autostart) render(execPath string) ([]byte, error) {
	config := plistConfig{
		Label:          AutostartLabel,
		ExecutablePath: execPath,
		DataDir:        a.paths.DataDir,
		LogPath:        a.paths.LogFile,
		ErrorLogPath:   a.paths.ErrFile,
	}

	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the plist and loads it. An installed plist with stale
// content is unloaded and replaced.
func (a *Autostart) Install(execPath string) error {
	content, err := a.render(execPath)
	if err != nil {
		return err
	}

	if current, err := os.ReadFile(a.plistPath); err == nil {
		if bytes.Equal(current, content) {
			return nil
		}
		// Unload first (ignore errors if not loaded)
		_ = a.runner.Run("launchctl", "unload", a.plistPath)
	}

	if err := os.MkdirAll(a.plistDir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(a.plistPath, content, 0644); err != nil {
		return err
	}

	// `launchctl load` is deprecated in favour of bootstrap gui/<uid> but still works.
	if err := a.runner.Run("launchctl", "load", a.plistPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", a.plistPath, err)
	}
	return nil
}

// Uninstall unloads and removes the plist. Not installed is not an error.
func (a *Autostart) Uninstall() error {
	if !a.IsInstalled() {
		return nil
	}
	_ = a.runner.Run("launchctl", "unload", a.plistPath)
	return os.Remove(a.plistPath)
}

// IsInstalled checks if the plist is present.
func (a *Autostart) IsInstalled() bool {
	_, err := os.Stat(a.plistPath)
	return err == nil
}
