package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/bridge"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/remote"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := infra.ResolvePaths(cfg.Store.DataDir)
	if err := os.MkdirAll(paths.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := infra.NewLogger(cfg.Log, paths)
	defer func() { _ = logger.Sync() }()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(paths.DataDir, pm)
	if alive, _ := registry.IsAlive(); alive {
		rec, _ := registry.Get()
		if rec != nil && rec.PID != os.Getpid() {
			return fmt.Errorf("webmon is already running (pid %d)", rec.PID)
		}
	}

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(paths.DataDir), paths.Store)
	if err != nil {
		return fmt.Errorf("failed to load store key: %w", err)
	}
	store, err := infra.NewEncryptedStore(paths.DataDir, key)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	metrics := infra.NewMetrics()
	kv := infra.NewWriteBehind(store, metrics, logger)
	ext := bridge.NewExtension(metrics, logger)

	syncClient := remote.NewClient(remote.Options{
		URL:        cfg.Sync.URL,
		RetryDelay: cfg.Sync.RetryDelay,
	}, logger)
	syncClient.OnStateChange(metrics.SyncStateChanged)

	dcfg := daemon.DefaultConfig()
	dcfg.FocusPollInterval = cfg.Tracker.FocusPollInterval
	dcfg.FeedInterval = cfg.Tracker.FeedInterval
	dcfg.TelemetryInterval = cfg.Tracker.TelemetryInterval
	dcfg.RedirectURL = cfg.Tracker.RedirectURL

	d := daemon.New(dcfg, daemon.Deps{
		Store:      kv,
		Browser:    ext,
		Navigator:  ext,
		Suppressor: ext,
		Sync:       syncClient,
		Probe:      infra.NewBrowserProbe(pm, cfg.Browser.ProcessNames),
		Metrics:    metrics,
	}, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := d.Load(ctx); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	server := bridge.NewServer(bridge.Options{
		Addr:    cfg.Bridge.Addr,
		Metrics: metrics.Handler(),
		Release: !cfg.Log.Development,
	}, ext, d, logger)
	if err := server.Listen(); err != nil {
		return fmt.Errorf("failed to bind bridge on %s: %w", cfg.Bridge.Addr, err)
	}

	if err := registry.Register(domain.DaemonRecord{
		PID:        os.Getpid(),
		BridgeAddr: server.Addr(),
		StartedAt:  time.Now().Unix(),
		AppVersion: Version,
	}); err != nil {
		logger.Warn("failed to register daemon", zap.Error(err))
	}
	defer func() {
		if err := registry.Clear(); err != nil {
			logger.Warn("failed to clear registry", zap.Error(err))
		}
	}()

	logger.Info("webmon started",
		zap.String("version", Version),
		zap.String("bridge", server.Addr()),
		zap.String("sync", cfg.Sync.URL),
		zap.String("data_dir", paths.DataDir),
	)

	// The write-behind outlives the daemon so its last checkpoint is flushed.
	storeCtx, stopStore := context.WithCancel(context.Background())
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		kv.Run(storeCtx)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		syncClient.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		if err := server.Serve(ctx); err != nil {
			logger.Error("bridge stopped", zap.Error(err))
		}
	}()

	runErr := d.Run(ctx)
	cancel()
	wg.Wait()

	stopStore()
	<-storeDone

	logger.Info("webmon stopped")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	registry := infra.NewFileRegistry(paths.DataDir, infra.NewProcessManager())

	if alive, _ := registry.IsAlive(); alive {
		if rec, _ := registry.Get(); rec != nil {
			fmt.Printf("webmon is already running (pid %d, bridge %s)\n", rec.PID, rec.BridgeAddr)
			return nil
		}
	}

	pid, err := daemon.StartDetached(forwardedFlags()...)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for the daemon to register
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec, err := registry.Get(); err == nil && rec != nil && rec.PID == pid {
			fmt.Println("\n=== webmon Started ===")
			fmt.Printf("PID: %d\n", rec.PID)
			fmt.Printf("Bridge: %s\n", rec.BridgeAddr)
			fmt.Printf("Data: %s\n", paths.DataDir)
			fmt.Println("======================")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not register; see %s", pid, paths.ErrFile)
}

func runInstall(cmd *cobra.Command, args []string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}

	paths := resolvePaths()
	if err := os.MkdirAll(paths.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	autostart := infra.NewAutostart(paths)
	if err := autostart.Install(execPath); err != nil {
		return err
	}
	fmt.Printf("Installed LaunchAgent %s\n", autostart.PlistPath())
	fmt.Printf("Binary: %s\n", execPath)
	fmt.Println("webmon will start on login and restart if it crashes.")
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	autostart := infra.NewAutostart(resolvePaths())
	if !autostart.IsInstalled() {
		fmt.Println("LaunchAgent is not installed.")
		return nil
	}
	if err := autostart.Uninstall(); err != nil {
		return fmt.Errorf("failed to remove LaunchAgent: %w", err)
	}
	fmt.Printf("Removed LaunchAgent %s\n", autostart.PlistPath())
	return nil
}
