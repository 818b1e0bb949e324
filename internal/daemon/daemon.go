// Package daemon implements the single scheduler goroutine that owns all
// tracking state.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

// ErrStopped is returned by commands once Run has returned.
// It matches domain.ErrUnavailable.
var ErrStopped = fmt.Errorf("daemon stopped: %w", domain.ErrUnavailable)

// Config holds scheduler configuration.
type Config struct {
	FocusPollInterval time.Duration // how often to read browser focus
	ProbeInterval     time.Duration // how often to check the browser process
	FeedInterval      time.Duration // live feed push while observers are attached
	TelemetryInterval time.Duration // usage snapshot to the sync channel
	RedirectURL       string
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		FocusPollInterval: 500 * time.Millisecond,
		ProbeInterval:     5 * time.Second,
		FeedInterval:      time.Second,
		TelemetryInterval: time.Second,
		RedirectURL:       "redirect.html",
	}
}

// Sync is the sync channel as seen by the scheduler.
type Sync interface {
	SendUsage(usage domain.SiteUsage) bool
	Updates() <-chan domain.PolicyUpdate
	State() domain.ConnState
}

// ProcessProbe reports whether a browser process is alive.
type ProcessProbe interface {
	Running() bool
}

// Metrics is what the scheduler records. *infra.Metrics implements it.
type Metrics interface {
	usecase.Recorder
	Telemetry(sent bool)
	PolicyUpdated(kind domain.UpdateKind)
	Observers(n int)
}

// Deps are the daemon's collaborators.
type Deps struct {
	Store      domain.KVStore
	Browser    domain.Browser
	Navigator  domain.Navigator
	Suppressor domain.Suppressor
	Sync       Sync
	Probe      ProcessProbe // optional
	Metrics    Metrics      // optional
	Clock      func() time.Time
}

type call struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Daemon serializes every handler on one goroutine: browser events,
// focus polls, timers, inbound policy updates and local commands.
type Daemon struct {
	config      Config
	store       domain.KVStore
	browser     domain.Browser
	navigator   domain.Navigator
	sync        Sync
	probe       ProcessProbe
	metrics     Metrics
	now         func() time.Time
	logger      *zap.Logger
	policies    *policy.Store
	ledger      *usecase.Ledger
	suppression *usecase.Suppression
	tracker     *usecase.Tracker

	// Owned by the Run goroutine.
	observers    map[string]domain.FeedObserver
	feedTicker   *time.Ticker
	browserAlive bool

	calls   chan call
	changes chan string
	stopped chan struct{}
}

// New wires the tracking components around deps.
func New(config Config, deps Deps, logger *zap.Logger) *Daemon {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	policies := policy.NewStore(deps.Store, logger)
	ledger := usecase.NewLedger(deps.Store, logger)
	suppression := usecase.NewSuppression(deps.Suppressor, deps.Metrics, logger)

	d := &Daemon{
		config:       config,
		store:        deps.Store,
		browser:      deps.Browser,
		navigator:    deps.Navigator,
		sync:         deps.Sync,
		probe:        deps.Probe,
		metrics:      deps.Metrics,
		now:          deps.Clock,
		logger:       logger,
		policies:     policies,
		ledger:       ledger,
		suppression:  suppression,
		observers:    make(map[string]domain.FeedObserver),
		browserAlive: true,
		calls:        make(chan call),
		changes:      make(chan string, 16),
		stopped:      make(chan struct{}),
	}
	d.tracker = usecase.NewTracker(
		ledger, policies, deps.Navigator, suppression,
		config.RedirectURL, deps.Metrics, logger,
	)
	return d
}

// Load restores policy and usage from the store. Call before Run.
func (d *Daemon) Load(ctx context.Context) error {
	if err := d.policies.Load(ctx); err != nil {
		return err
	}
	if err := d.ledger.Load(ctx); err != nil {
		return err
	}
	d.store.OnChange(d.onStoreChange)
	return nil
}

// Run starts the scheduler loop.
// This blocks until context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.stopped)

	d.logger.Info("daemon started",
		zap.Duration("focus_poll", d.config.FocusPollInterval),
		zap.Duration("telemetry", d.config.TelemetryInterval))

	d.pollFocus(ctx)

	focusTicker := time.NewTicker(d.config.FocusPollInterval)
	telemetryTicker := time.NewTicker(d.config.TelemetryInterval)
	defer func() {
		focusTicker.Stop()
		telemetryTicker.Stop()
		d.stopFeed()
	}()

	var probed <-chan bool
	if d.probe != nil {
		probeCtx, stopProbe := context.WithCancel(ctx)
		defer stopProbe()
		probed = d.runProbe(probeCtx)
	}

	var updates <-chan domain.PolicyUpdate
	if d.sync != nil {
		updates = d.sync.Updates()
	}

	for {
		select {
		case <-ctx.Done():
			// Close the open interval so the last seconds are not lost.
			d.tracker.Checkpoint(context.Background(), d.now())
			d.logger.Info("daemon stopping")
			return ctx.Err()

		case <-focusTicker.C:
			d.pollFocus(ctx)

		case alive := <-probed:
			d.browserAlive = alive
			d.pollFocus(ctx)

		case <-d.feedC():
			d.pushFeed(ctx)

		case <-telemetryTicker.C:
			d.sendTelemetry(ctx)

		case ev := <-d.browser.Events():
			d.onBrowserEvent(ctx, ev)

		case u := <-updates:
			d.applyUpdate(ctx, u)

		case key := <-d.changes:
			d.pushPolicy(key)

		case c := <-d.calls:
			c.fn(ctx)
			close(c.done)
		}
	}
}

// runProbe scans for the browser process on its own goroutine, once at
// start and then every ProbeInterval. Only the latest result is kept.
func (d *Daemon) runProbe(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)
	go func() {
		ticker := time.NewTicker(d.config.ProbeInterval)
		defer ticker.Stop()
		for {
			alive := d.probe.Running()
			select {
			case <-out:
			default:
			}
			out <- alive

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// do runs fn on the scheduler goroutine and waits for it.
func (d *Daemon) do(ctx context.Context, fn func(ctx context.Context)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case d.calls <- c:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-d.stopped:
		return ErrStopped
	}
}

// pollFocus reads the browser focus and reports transitions.
func (d *Daemon) pollFocus(ctx context.Context) {
	focused := d.browser.Focused() && d.browserAlive
	if focused == d.tracker.Focused() {
		return
	}
	d.logger.Debug("focus changed", zap.Bool("focused", focused))
	d.tracker.OnFocusChanged(ctx, focused, d.now(), d.browser.ActiveTab())
}

// onBrowserEvent routes one tab or navigation fact.
func (d *Daemon) onBrowserEvent(ctx context.Context, ev domain.BrowserEvent) {
	at := ev.At
	if at.IsZero() {
		at = d.now()
	}

	switch ev.Kind {
	case domain.TabActivated:
		d.tracker.OnTabContext(ctx, ev.TabID, ev.URL, at)

	case domain.Navigated, domain.TabUpdated:
		if ev.Kind == domain.Navigated && ev.FrameID != 0 {
			return
		}
		if !policy.IsTrackable(ev.URL) {
			// Non-web URLs only matter for the active tab, where they pause tracking.
			if d.isActive(ev.TabID) {
				d.tracker.OnTabContext(ctx, ev.TabID, ev.URL, at)
			}
			return
		}
		if d.isActive(ev.TabID) {
			d.tracker.OnTabContext(ctx, ev.TabID, ev.URL, at)
		} else {
			d.tracker.Enforce(ctx, ev.TabID, ev.URL)
		}

	case domain.PageComplete:
		d.suppression.Apply(ctx, ev.TabID, ev.URL, d.policies.Current())
	}
}

// isActive reports whether tabID is the tab the session should follow.
// With no active tab known, any tab qualifies.
func (d *Daemon) isActive(tabID int) bool {
	if active := d.browser.ActiveTab(); active != nil {
		return active.ID == tabID
	}
	return true
}

// applyUpdate mutates and persists policy, then re-applies effectors.
func (d *Daemon) applyUpdate(ctx context.Context, u domain.PolicyUpdate) {
	changed, err := d.policies.Apply(ctx, u)
	if err != nil {
		d.logger.Warn("policy update failed",
			zap.String("kind", string(u.Kind)),
			zap.Error(err))
		return
	}
	d.metrics.PolicyUpdated(u.Kind)
	d.logger.Info("policy updated",
		zap.String("kind", string(u.Kind)),
		zap.Bool("changed", changed))

	active := d.browser.ActiveTab()
	if active == nil {
		return
	}

	switch u.Kind {
	case domain.UpdateImages:
		d.applyImages(ctx, active, u.Enabled)
	case domain.UpdateVideos:
		_ = d.suppression.ApplyVideos(ctx, active.ID, active.URL, u.Enabled)
	default:
		if changed {
			// A newly blocked active page is redirected without waiting for
			// the next navigation.
			d.tracker.Enforce(ctx, active.ID, active.URL)
		}
	}
}

// applyImages sets the image effector and reloads the tab, since images
// already on the page are not affected by the flag.
func (d *Daemon) applyImages(ctx context.Context, tab *domain.Tab, blocked bool) {
	if !policy.IsTrackable(tab.URL) {
		return
	}
	_ = d.suppression.ApplyImages(ctx, tab.ID, tab.URL, blocked)
	if err := d.navigator.Reload(ctx, tab.ID); err != nil {
		d.logger.Warn("reload failed", zap.Int("tab_id", tab.ID), zap.Error(err))
		d.metrics.EffectorFailed("reload")
	}
}

// sendTelemetry accrues in the background when nobody watches the feed,
// then offers the ledger to the sync channel.
func (d *Daemon) sendTelemetry(ctx context.Context) {
	if len(d.observers) == 0 {
		d.tracker.Checkpoint(ctx, d.now())
	}
	if d.sync == nil {
		return
	}
	d.metrics.Telemetry(d.sync.SendUsage(d.ledger.Snapshot()))
}

// onStoreChange runs on the store's writer goroutine.
func (d *Daemon) onStoreChange(key string, _ []byte) {
	switch key {
	case domain.KeyBlockedDomains, domain.KeyWhitelistedDomains,
		domain.KeyMediaBlocking, domain.KeyVideosBlocking, domain.KeyEnforcement:
	default:
		return
	}
	select {
	case d.changes <- key:
	default:
	}
}

func (d *Daemon) pushPolicy(key string) {
	if len(d.observers) == 0 {
		return
	}
	d.logger.Debug("pushing policy to observers", zap.String("key", key))
	d.broadcast(domain.PolicyFeed{Policy: d.policies.Current()})
}

func (d *Daemon) pushFeed(ctx context.Context) {
	d.tracker.Checkpoint(ctx, d.now())
	d.broadcast(domain.UsageFeed{SiteUsage: d.ledger.Snapshot()})
}

func (d *Daemon) broadcast(msg any) {
	for id, obs := range d.observers {
		if err := obs.Push(msg); err != nil {
			d.logger.Debug("feed push failed", zap.String("observer", id), zap.Error(err))
		}
	}
}

func (d *Daemon) feedC() <-chan time.Time {
	if d.feedTicker == nil {
		return nil
	}
	return d.feedTicker.C
}

func (d *Daemon) startFeed() {
	if d.feedTicker == nil {
		d.feedTicker = time.NewTicker(d.config.FeedInterval)
	}
}

func (d *Daemon) stopFeed() {
	if d.feedTicker != nil {
		d.feedTicker.Stop()
		d.feedTicker = nil
	}
}

type nopMetrics struct{}

func (nopMetrics) Accrued(float64)                 {}
func (nopMetrics) Redirected()                     {}
func (nopMetrics) EffectorFailed(string)           {}
func (nopMetrics) Telemetry(bool)                  {}
func (nopMetrics) PolicyUpdated(domain.UpdateKind) {}
func (nopMetrics) Observers(int)                   {}
