// Package usecase contains application business logic.
package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// NoTab is the tab id used before any tab has been observed.
const NoTab = -1

// PolicySource is the read side of the policy store.
type PolicySource interface {
	Current() domain.Policy
	Decide(d string) domain.Decision
}

// Tracker is the activity state machine. It owns the single active
// session and is the only writer of the usage ledger.
// Not safe for concurrent use; the daemon serializes all calls.
type Tracker struct {
	session     domain.ActiveSession
	focused     bool
	ledger      *Ledger
	policies    PolicySource
	navigator   domain.Navigator
	suppression *Suppression
	redirectURL string
	recorder    Recorder
	logger      *zap.Logger
}

// NewTracker creates a tracker with no active tab. The browser is assumed
// focused until told otherwise.
func NewTracker(
	ledger *Ledger,
	policies PolicySource,
	navigator domain.Navigator,
	suppression *Suppression,
	redirectURL string,
	recorder Recorder,
	logger *zap.Logger,
) *Tracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Tracker{
		session:     domain.ActiveSession{TabID: NoTab},
		focused:     true,
		ledger:      ledger,
		policies:    policies,
		navigator:   navigator,
		suppression: suppression,
		redirectURL: redirectURL,
		recorder:    recorder,
		logger:      logger,
	}
}

// OnTabContext handles any signal that the active tab or its URL may have
// changed: activation, navigation, URL update, or focus regained.
func (t *Tracker) OnTabContext(ctx context.Context, tabID int, rawURL string, at time.Time) {
	t.checkpoint(ctx, at)

	newDomain, _ := policy.Normalize(rawURL) // malformed => "" => paused

	if newDomain != t.session.Domain || tabID != t.session.TabID {
		t.logger.Debug("session switched",
			zap.Int("from_tab", t.session.TabID),
			zap.String("from_domain", t.session.Domain),
			zap.Int("to_tab", tabID),
			zap.String("to_domain", newDomain))
		t.session = domain.ActiveSession{
			TabID:    tabID,
			Domain:   newDomain,
			OpenedAt: at,
		}
	}
	t.resume(at)

	t.Enforce(ctx, tabID, rawURL)
}

// Enforce redirects the tab if its domain is blocked and pushes the
// suppression flags. It never touches the session, so it is also used
// for navigations in tabs other than the active one.
func (t *Tracker) Enforce(ctx context.Context, tabID int, rawURL string) {
	d, _ := policy.Normalize(rawURL)

	// The redirect page's own navigation event is what moves the session.
	if dec := t.policies.Decide(d); dec.ShouldRedirect() {
		t.logger.Info("redirecting blocked domain",
			zap.Int("tab_id", tabID),
			zap.String("domain", d),
			zap.String("rule", dec.MatchedRule))
		t.recorder.Redirected()
		if err := t.navigator.Navigate(ctx, tabID, t.redirectURL); err != nil {
			t.logger.Warn("redirect failed",
				zap.Int("tab_id", tabID),
				zap.Error(err))
			t.recorder.EffectorFailed("navigate")
		}
	}

	t.suppression.Apply(ctx, tabID, rawURL, t.policies.Current())
}

// OnFocusChanged handles browser focus transitions. On loss the open
// interval is closed and tracking pauses without forgetting the tab. On
// gain the active tab is re-evaluated, which reopens the interval at at.
func (t *Tracker) OnFocusChanged(ctx context.Context, focused bool, at time.Time, active *domain.Tab) {
	if !focused {
		t.checkpoint(ctx, at)
		t.focused = false
		t.session.StartedAt = nil
		t.logger.Debug("browser lost focus", zap.String("domain", t.session.Domain))
		return
	}

	t.focused = true
	t.logger.Debug("browser gained focus")
	if active != nil {
		t.OnTabContext(ctx, active.ID, active.URL, at)
		return
	}
	t.resume(at)
}

// Checkpoint accrues the open interval up to at and restarts it at at.
// Used by the periodic feed so observers see time accumulate live.
func (t *Tracker) Checkpoint(ctx context.Context, at time.Time) {
	t.checkpoint(ctx, at)
}

// Session returns a copy of the active session.
func (t *Tracker) Session() domain.ActiveSession {
	s := t.session
	if s.StartedAt != nil {
		start := *s.StartedAt
		s.StartedAt = &start
	}
	return s
}

// Focused reports the last focus state the tracker was told about.
func (t *Tracker) Focused() bool {
	return t.focused
}

// checkpoint is the only path that adds to the ledger.
func (t *Tracker) checkpoint(ctx context.Context, at time.Time) {
	if !t.session.IsOpen() {
		return
	}

	elapsed := at.Sub(*t.session.StartedAt).Seconds()
	if elapsed > 0 && t.session.Domain != "" {
		if t.ledger.Accrue(ctx, t.session.Domain, elapsed) {
			t.recorder.Accrued(elapsed)
		}
	}
	if elapsed < 0 {
		t.logger.Debug("clock moved backwards, restarting interval",
			zap.Float64("elapsed", elapsed))
	}

	start := at
	t.session.StartedAt = &start
}

// resume opens the interval at at when tracking is possible, and pauses it
// otherwise. An interval that is already open was restarted by checkpoint.
func (t *Tracker) resume(at time.Time) {
	if !t.focused || t.session.Domain == "" {
		t.session.StartedAt = nil
		return
	}
	if t.session.StartedAt == nil {
		start := at
		t.session.StartedAt = &start
	}
}
