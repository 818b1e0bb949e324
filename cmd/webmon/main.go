// Package main is the CLI entry point for webmon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "webmon",
	Short: "Browser usage monitor - tracks time per site and blocks distractions",
	Long: `webmon is a daemon that works with its browser extension to track how
long you spend on each website, redirect blocked sites and hide images
or videos on demand. Usage is stored encrypted on disk and streamed to
a control peer, which pushes block and allow lists back.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Runs the tracking daemon in the foreground until interrupted.
Configuration comes from WEBMON_* environment variables; flags override them.`,
	RunE: runDaemon,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long:  `Spawns a detached 'webmon run' and waits for it to register.`,
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Shows whether the daemon is running, its sync state and what it is tracking.`,
	RunE:  runStatus,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show accumulated time per site",
	RunE:  runUsage,
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the current block list, allow list and media settings",
	RunE:  runPolicy,
}

var toggleCmd = &cobra.Command{
	Use:       "toggle [images|videos]",
	Short:     "Toggle image or video suppression",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"images", "videos"},
	RunE:      runToggle,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start webmon automatically on login (macOS LaunchAgent)",
	Long: `Installs a LaunchAgent that runs 'webmon run' on login and restarts it
if it crashes. Re-running install after moving the binary updates the agent.`,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the login LaunchAgent",
	RunE:  runUninstall,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	dataDir    string
	bridgeAddr string
	syncURL    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.webmon)")
	runCmd.Flags().StringVar(&bridgeAddr, "bridge-addr", "", "Bridge listen address")
	runCmd.Flags().StringVar(&syncURL, "sync-url", "", "Control peer websocket URL")
	startCmd.Flags().StringVar(&bridgeAddr, "bridge-addr", "", "Bridge listen address")
	startCmd.Flags().StringVar(&syncURL, "sync-url", "", "Control peer websocket URL")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if bridgeAddr != "" {
		cfg.Bridge.Addr = bridgeAddr
	}
	if syncURL != "" {
		cfg.Sync.URL = syncURL
	}
	return cfg, nil
}

// forwardedFlags rebuilds the overrides for a detached child.
func forwardedFlags() []string {
	var args []string
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	if bridgeAddr != "" {
		args = append(args, "--bridge-addr", bridgeAddr)
	}
	if syncURL != "" {
		args = append(args, "--sync-url", syncURL)
	}
	return args
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("webmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
