package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Ledger is the durable per-domain usage ledger.
// It is owned by the daemon goroutine and is not safe for concurrent use.
type Ledger struct {
	usage  domain.SiteUsage
	kv     domain.KVStore
	logger *zap.Logger
}

// NewLedger creates an empty ledger backed by kv.
func NewLedger(kv domain.KVStore, logger *zap.Logger) *Ledger {
	return &Ledger{
		usage:  make(domain.SiteUsage),
		kv:     kv,
		logger: logger,
	}
}

// Load reads the persisted ledger, replacing the in-memory one.
func (l *Ledger) Load(ctx context.Context) error {
	values, err := l.kv.Get(ctx, domain.KeySiteUsage)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	raw, ok := values[domain.KeySiteUsage]
	if !ok {
		return nil
	}

	var stored domain.SiteUsage
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("failed to decode usage: %w", err)
	}

	usage := make(domain.SiteUsage, len(stored))
	for d, secs := range stored {
		usage.Add(d, secs) // drops negative or empty entries
	}
	l.usage = usage
	return nil
}

// Accrue adds seconds for a domain and persists the ledger.
// Returns false when nothing was added.
func (l *Ledger) Accrue(ctx context.Context, d string, seconds float64) bool {
	if !l.usage.Add(d, seconds) {
		return false
	}
	if err := l.persist(ctx); err != nil {
		l.logger.Warn("failed to persist usage", zap.Error(err))
	}
	return true
}

// Snapshot returns a copy of the ledger.
func (l *Ledger) Snapshot() domain.SiteUsage {
	return l.usage.Clone()
}

// Seconds returns the accrued seconds for one domain.
func (l *Ledger) Seconds(d string) float64 {
	return l.usage[d]
}

func (l *Ledger) persist(ctx context.Context) error {
	raw, err := json.Marshal(l.usage)
	if err != nil {
		return err
	}
	return l.kv.Set(ctx, map[string][]byte{domain.KeySiteUsage: raw})
}
