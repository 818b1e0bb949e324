package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Attach adds a live feed observer. The active tab is re-evaluated and the
// ledger is pushed at once.
func (d *Daemon) Attach(obs domain.FeedObserver) {
	_ = d.do(context.Background(), func(ctx context.Context) {
		d.observers[obs.ID()] = obs
		d.metrics.Observers(len(d.observers))
		d.startFeed()

		if active := d.browser.ActiveTab(); active != nil {
			d.tracker.OnTabContext(ctx, active.ID, active.URL, d.now())
		}
		d.tracker.Checkpoint(ctx, d.now())
		if err := obs.Push(domain.UsageFeed{SiteUsage: d.ledger.Snapshot()}); err != nil {
			d.logger.Debug("initial feed push failed", zap.Error(err))
		}
	})
}

// Detach removes an observer. The feed timer stops with the last one.
func (d *Daemon) Detach(id string) {
	_ = d.do(context.Background(), func(ctx context.Context) {
		delete(d.observers, id)
		d.metrics.Observers(len(d.observers))
		if len(d.observers) == 0 {
			d.stopFeed()
		}
	})
}

// ToggleImages flips image suppression, persists it, applies it to the
// active tab and reloads that tab.
func (d *Daemon) ToggleImages(ctx context.Context) (domain.MediaState, error) {
	var (
		state domain.MediaState
		err   error
	)
	if callErr := d.do(ctx, func(ctx context.Context) {
		blocked := !d.policies.Media().ImagesBlocked
		if err = d.policies.SetImages(ctx, blocked); err != nil {
			return
		}
		d.logger.Info("image suppression toggled", zap.Bool("blocked", blocked))
		if active := d.browser.ActiveTab(); active != nil {
			d.applyImages(ctx, active, blocked)
		}
		state = d.policies.Media()
	}); callErr != nil {
		return domain.MediaState{}, callErr
	}
	return state, err
}

// ToggleVideos flips video suppression, persists it and re-applies
// suppression on the active tab.
func (d *Daemon) ToggleVideos(ctx context.Context) (domain.MediaState, error) {
	var (
		state domain.MediaState
		err   error
	)
	if callErr := d.do(ctx, func(ctx context.Context) {
		blocked := !d.policies.Media().VideosBlocked
		if err = d.policies.SetVideos(ctx, blocked); err != nil {
			return
		}
		d.logger.Info("video suppression toggled", zap.Bool("blocked", blocked))
		if active := d.browser.ActiveTab(); active != nil {
			_ = d.suppression.ApplyVideos(ctx, active.ID, active.URL, blocked)
		}
		state = d.policies.Media()
	}); callErr != nil {
		return domain.MediaState{}, callErr
	}
	return state, err
}

// MediaState returns both suppression flags.
func (d *Daemon) MediaState(ctx context.Context) (domain.MediaState, error) {
	var state domain.MediaState
	err := d.do(ctx, func(context.Context) {
		state = d.policies.Media()
	})
	return state, err
}

// Usage returns the ledger including the open interval.
func (d *Daemon) Usage(ctx context.Context) (domain.SiteUsage, error) {
	var usage domain.SiteUsage
	err := d.do(ctx, func(ctx context.Context) {
		d.tracker.Checkpoint(ctx, d.now())
		usage = d.ledger.Snapshot()
	})
	return usage, err
}

// Policy returns the current policy.
func (d *Daemon) Policy(ctx context.Context) (domain.Policy, error) {
	var p domain.Policy
	err := d.do(ctx, func(context.Context) {
		p = d.policies.Current()
	})
	return p, err
}

// Status summarizes the daemon for the status command.
func (d *Daemon) Status(ctx context.Context) (domain.DaemonStatus, error) {
	var st domain.DaemonStatus
	err := d.do(ctx, func(context.Context) {
		s := d.tracker.Session()
		usage := d.ledger.Snapshot()
		st = domain.DaemonStatus{
			SyncState:         domain.Disconnected.String(),
			ExtensionAttached: d.browser.Attached(),
			Focused:           d.tracker.Focused(),
			ActiveTab:         s.TabID,
			ActiveDomain:      s.Domain,
			Tracking:          s.IsOpen(),
			Observers:         len(d.observers),
			TrackedDomains:    len(usage),
			TotalSeconds:      usage.Total(),
		}
		if d.sync != nil {
			st.SyncState = d.sync.State().String()
		}
	})
	return st, err
}
