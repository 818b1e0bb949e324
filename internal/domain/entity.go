// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Storage keys shared with the companion extension's storage layout.
const (
	KeySiteUsage          = "siteUsage"
	KeyBlockedDomains     = "blockedDomains"
	KeyWhitelistedDomains = "whitelistedDomains"
	KeyMediaBlocking      = "mediaBlocking"
	KeyVideosBlocking     = "videosBlocking"
	KeyEnforcement        = "enforcementEnabled"
)

// SiteUsage maps a normalized domain to accumulated focused seconds.
// Values never decrease.
type SiteUsage map[string]float64

// Add accrues seconds for a domain. Empty domains and non-positive
// deltas are ignored. Returns true if the ledger changed.
func (u SiteUsage) Add(domain string, seconds float64) bool {
	if domain == "" || seconds <= 0 {
		return false
	}
	u[domain] += seconds
	return true
}

// Clone returns an independent copy safe to hand to other goroutines.
func (u SiteUsage) Clone() SiteUsage {
	out := make(SiteUsage, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Total returns the sum of all accrued seconds.
func (u SiteUsage) Total() float64 {
	var total float64
	for _, v := range u {
		total += v
	}
	return total
}

// ActiveSession is the single tracked (tab, domain) pair.
type ActiveSession struct {
	TabID  int
	Domain string // empty when the tab has no trackable domain

	// OpenedAt is when this (tab, domain) pair became active.
	OpenedAt time.Time

	// StartedAt is the start of the current accrual interval.
	// nil means tracking is paused (browser unfocused or no domain).
	StartedAt *time.Time
}

// IsOpen reports whether time is currently being accrued.
func (s ActiveSession) IsOpen() bool {
	return s.StartedAt != nil
}

// Policy is the full policy state mirrored from the control peer.
type Policy struct {
	BlockList          []string `json:"blockedDomains"`
	AllowList          []string `json:"whitelistedDomains"`
	EnforcementEnabled bool     `json:"enforcementEnabled"`
	ImagesBlocked      bool     `json:"mediaBlocking"`
	VideosBlocked      bool     `json:"videosBlocking"`
}

// DefaultPolicy returns the policy used before anything is loaded.
func DefaultPolicy() Policy {
	return Policy{
		BlockList:          []string{},
		AllowList:          []string{},
		EnforcementEnabled: true,
	}
}

// MediaState reports the two suppression flags.
type MediaState struct {
	ImagesBlocked bool `json:"imagesEnabled"`
	VideosBlocked bool `json:"videosEnabled"`
}

// UpdateKind identifies which policy field an inbound update replaces.
type UpdateKind string

const (
	UpdateBlockList   UpdateKind = "blocklist"
	UpdateAllowList   UpdateKind = "allowlist"
	UpdateImages      UpdateKind = "images"
	UpdateVideos      UpdateKind = "videos"
	UpdateEnforcement UpdateKind = "enforcement"
)

// PolicyUpdate is a full-replacement value for one policy field.
// Domains is used by list updates, Enabled by flag updates.
type PolicyUpdate struct {
	Kind    UpdateKind
	Domains []string
	Enabled bool
}

// Verdict is the outcome of a blocking decision.
type Verdict int

const (
	Allow Verdict = iota
	Redirect
)

// String returns the string representation of the verdict
func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating a domain against the policy.
// Pure value type.
type Decision struct {
	Verdict     Verdict
	Domain      string
	MatchedRule string // block-list entry that matched, or allow-list entry that exempted
	Reason      string
}

// ShouldRedirect is a convenience accessor.
func (d Decision) ShouldRedirect() bool { return d.Verdict == Redirect }

// ConnState is the sync channel connection status.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// String returns the string representation of the state
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Tab identifies a browser tab and its current URL.
type Tab struct {
	ID  int    `json:"tabId"`
	URL string `json:"url"`
}

// EventKind identifies a browser event reported by the extension.
type EventKind string

const (
	TabActivated EventKind = "tab_activated"
	Navigated    EventKind = "navigation"
	TabUpdated   EventKind = "tab_updated"
	PageComplete EventKind = "page_complete"
)

// BrowserEvent is a tab or navigation fact reported by the extension.
type BrowserEvent struct {
	Kind    EventKind
	TabID   int
	URL     string
	FrameID int // only meaningful for Navigated; 0 is the top frame
	At      time.Time
}

// DaemonStatus is the snapshot reported by the status command.
type DaemonStatus struct {
	SyncState         string  `json:"sync_state"`
	ExtensionAttached bool    `json:"extension_attached"`
	Focused           bool    `json:"focused"`
	ActiveTab         int     `json:"active_tab"`
	ActiveDomain      string  `json:"active_domain"`
	Tracking          bool    `json:"tracking"`
	Observers         int     `json:"observers"`
	TrackedDomains    int     `json:"tracked_domains"`
	TotalSeconds      float64 `json:"total_seconds"`
}

// UsageFeed is the live feed push carrying the whole ledger.
type UsageFeed struct {
	SiteUsage SiteUsage `json:"siteUsage"`
}

// PolicyFeed is pushed to observers when stored policy changes.
type PolicyFeed struct {
	Policy Policy `json:"policy"`
}
