package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
)

// resolvePaths honours WEBMON_STORE_DATA_DIR and --data-dir like `run` does.
func resolvePaths() infra.Paths {
	if cfg, err := loadConfig(); err == nil {
		return infra.ResolvePaths(cfg.Store.DataDir)
	}
	return infra.ResolvePaths(dataDir)
}

// apiClient finds the running daemon through the registry.
func apiClient() (*resty.Client, *domain.DaemonRecord, error) {
	paths := resolvePaths()
	registry := infra.NewFileRegistry(paths.DataDir, infra.NewProcessManager())

	rec, err := registry.Get()
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, nil
	}
	if alive, _ := registry.IsAlive(); !alive {
		return nil, rec, nil
	}

	client := resty.New().
		SetBaseURL("http://"+rec.BridgeAddr).
		SetTimeout(3*time.Second).
		SetHeader("Accept", "application/json")
	return client, rec, nil
}

type apiError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func call(client *resty.Client, method, path string, out any) error {
	var apiErr apiError
	resp, err := client.R().
		SetResult(out).
		SetError(&apiErr).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode(), apiErr.Error)
		}
		return fmt.Errorf("daemon error: %s", resp.Status())
	}
	return nil
}

func requireDaemon() (*resty.Client, error) {
	client, _, err := apiClient()
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("webmon is not running; run 'webmon start'")
	}
	return client, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, rec, err := apiClient()
	if err != nil {
		return err
	}

	if client == nil {
		if jsonOutput {
			fmt.Println(`{"running":false}`)
			return nil
		}
		fmt.Println("\n=== webmon Status ===")
		if rec != nil {
			fmt.Printf("Status: NOT RUNNING (stale record for pid %d)\n", rec.PID)
		} else {
			fmt.Println("Status: NOT RUNNING")
		}
		fmt.Println("\nRun 'webmon start' to begin tracking.")
		return nil
	}

	var st domain.DaemonStatus
	if err := call(client, resty.MethodGet, "/api/status", &st); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(struct {
			Running bool                `json:"running"`
			PID     int                 `json:"pid"`
			Bridge  string              `json:"bridge"`
			Status  domain.DaemonStatus `json:"status"`
		}{true, rec.PID, rec.BridgeAddr, st})
	}

	fmt.Println("\n=== webmon Status ===")
	fmt.Printf("Status: RUNNING (pid %d)\n", rec.PID)
	fmt.Printf("Bridge: %s\n", rec.BridgeAddr)
	if rec.StartedAt > 0 {
		fmt.Printf("Uptime: %s\n", time.Since(time.Unix(rec.StartedAt, 0)).Round(time.Second))
	}
	fmt.Printf("Sync: %s\n", st.SyncState)
	fmt.Printf("Extension: %s\n", onOff(st.ExtensionAttached, "attached", "not attached"))
	fmt.Printf("Browser focused: %t\n", st.Focused)
	if st.Tracking {
		fmt.Printf("Tracking: %s (tab %d)\n", st.ActiveDomain, st.ActiveTab)
	} else {
		fmt.Println("Tracking: idle")
	}
	fmt.Printf("Sites tracked: %d (%s total)\n", st.TrackedDomains, seconds(st.TotalSeconds))
	fmt.Printf("Popups open: %d\n", st.Observers)
	fmt.Println("=====================")
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	client, err := requireDaemon()
	if err != nil {
		return err
	}
	var feed domain.UsageFeed
	if err := call(client, resty.MethodGet, "/api/usage", &feed); err != nil {
		return err
	}

	domains := make([]string, 0, len(feed.SiteUsage))
	for d := range feed.SiteUsage {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		return feed.SiteUsage[domains[i]] > feed.SiteUsage[domains[j]]
	})

	fmt.Println("\n=== Site Usage ===")
	if len(domains) == 0 {
		fmt.Println("Nothing tracked yet.")
	}
	for _, d := range domains {
		fmt.Printf("  %-40s %s\n", d, seconds(feed.SiteUsage[d]))
	}
	fmt.Printf("\nTotal: %s\n", seconds(feed.SiteUsage.Total()))
	fmt.Println("==================")
	return nil
}

func runPolicy(cmd *cobra.Command, args []string) error {
	client, err := requireDaemon()
	if err != nil {
		return err
	}
	var p domain.Policy
	if err := call(client, resty.MethodGet, "/api/policy", &p); err != nil {
		return err
	}

	fmt.Println("\n=== Policy ===")
	fmt.Printf("Enforcement: %s\n", onOff(p.EnforcementEnabled, "enabled", "disabled"))
	fmt.Printf("Images: %s\n", onOff(p.ImagesBlocked, "hidden", "shown"))
	fmt.Printf("Videos: %s\n", onOff(p.VideosBlocked, "hidden", "shown"))
	fmt.Println("\nBlocked:")
	for _, d := range p.BlockList {
		fmt.Printf("  - %s\n", d)
	}
	fmt.Println("Allowed:")
	for _, d := range p.AllowList {
		fmt.Printf("  - %s\n", d)
	}
	fmt.Println("==============")
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	client, err := requireDaemon()
	if err != nil {
		return err
	}
	var state domain.MediaState
	if err := call(client, resty.MethodPost, "/api/toggle/"+args[0], &state); err != nil {
		return err
	}
	fmt.Printf("Images: %s\n", onOff(state.ImagesBlocked, "hidden", "shown"))
	fmt.Printf("Videos: %s\n", onOff(state.VideosBlocked, "hidden", "shown"))
	return nil
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

func seconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}
