package domain

import "context"

// KVStore is the durable key/value store.
// Implementation: SQLCipher encrypted SQLite database.
type KVStore interface {
	// Get returns the raw values for the keys that exist.
	// Missing keys are absent from the result, not an error.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)

	// Set writes all entries.
	Set(ctx context.Context, entries map[string][]byte) error

	// OnChange registers a callback invoked after a key is written.
	// Callbacks run on the writer's goroutine.
	OnChange(fn func(key string, value []byte))
}

// Navigator sends a tab to another URL.
// Implementation: command over the extension link.
type Navigator interface {
	// Navigate points the tab at url.
	Navigate(ctx context.Context, tabID int, url string) error

	// Reload reloads the tab's current page.
	Reload(ctx context.Context, tabID int) error
}

// Suppressor hides images or videos on a tab's page.
// Both calls are idempotent.
type Suppressor interface {
	SetImages(ctx context.Context, tabID int, blocked bool) error
	SetVideos(ctx context.Context, tabID int, blocked bool) error
}

// Browser exposes the last state the browser reported.
// Reads must not block; the daemon polls them.
type Browser interface {
	// Attached reports whether the browser side is connected at all.
	Attached() bool

	// Focused reports whether a browser window holds input focus.
	Focused() bool

	// ActiveTab returns the active tab of the focused window, or nil.
	ActiveTab() *Tab

	// Events delivers tab and navigation events.
	Events() <-chan BrowserEvent
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes whose name contains any of the
	// patterns, case-insensitively. The process table is read once.
	FindByName(patterns ...string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}

// DaemonRecord is what a running daemon publishes about itself.
type DaemonRecord struct {
	PID        int    `json:"pid"`
	BridgeAddr string `json:"bridge_addr"`
	StartedAt  int64  `json:"started_at"`
	AppVersion string `json:"app_version,omitempty"`
}

// DaemonRegistry lets CLI commands find the running daemon.
// Implementation: JSON file in the data directory.
type DaemonRegistry interface {
	// Register saves the current daemon's record.
	Register(rec DaemonRecord) error

	// Get returns the registered record, or nil if none.
	Get() (*DaemonRecord, error)

	// IsAlive checks the registered PID is running.
	IsAlive() (bool, error)

	// Clear removes the registration.
	Clear() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// FeedObserver receives live-feed pushes (the popup).
type FeedObserver interface {
	// ID uniquely identifies the observer connection.
	ID() string

	// Push queues msg for delivery. It must not block.
	Push(msg any) error
}
