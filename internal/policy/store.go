package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Store holds the current policy and persists every mutation.
// It is owned by the daemon goroutine and is not safe for concurrent use.
type Store struct {
	kv     domain.KVStore
	policy domain.Policy
	logger *zap.Logger
}

// NewStore creates a store holding the default policy.
func NewStore(kv domain.KVStore, logger *zap.Logger) *Store {
	return &Store{
		kv:     kv,
		policy: domain.DefaultPolicy(),
		logger: logger,
	}
}

// Load reads the persisted policy. Missing keys keep their defaults.
func (s *Store) Load(ctx context.Context) error {
	values, err := s.kv.Get(ctx,
		domain.KeyBlockedDomains,
		domain.KeyWhitelistedDomains,
		domain.KeyMediaBlocking,
		domain.KeyVideosBlocking,
		domain.KeyEnforcement,
	)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	p := domain.DefaultPolicy()
	decode := func(key string, dst any) {
		raw, ok := values[key]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			s.logger.Warn("ignoring malformed stored policy value",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	decode(domain.KeyBlockedDomains, &p.BlockList)
	decode(domain.KeyWhitelistedDomains, &p.AllowList)
	decode(domain.KeyMediaBlocking, &p.ImagesBlocked)
	decode(domain.KeyVideosBlocking, &p.VideosBlocked)
	decode(domain.KeyEnforcement, &p.EnforcementEnabled)

	p.BlockList = NormalizeEntries(p.BlockList)
	p.AllowList = NormalizeEntries(p.AllowList)
	s.policy = p

	s.logger.Info("policy loaded",
		zap.Int("blocked", len(p.BlockList)),
		zap.Int("whitelisted", len(p.AllowList)),
		zap.Bool("enforcement", p.EnforcementEnabled),
		zap.Bool("images_blocked", p.ImagesBlocked),
		zap.Bool("videos_blocked", p.VideosBlocked))
	return nil
}

// Current returns a copy of the policy.
func (s *Store) Current() domain.Policy {
	p := s.policy
	p.BlockList = slices.Clone(s.policy.BlockList)
	p.AllowList = slices.Clone(s.policy.AllowList)
	return p
}

// Media returns the two suppression flags.
func (s *Store) Media() domain.MediaState {
	return domain.MediaState{
		ImagesBlocked: s.policy.ImagesBlocked,
		VideosBlocked: s.policy.VideosBlocked,
	}
}

// Apply replaces the field named by the update and persists it.
// Lists are replaced, never merged. Returns whether the policy changed.
func (s *Store) Apply(ctx context.Context, u domain.PolicyUpdate) (bool, error) {
	var (
		key     string
		value   any
		changed bool
	)

	switch u.Kind {
	case domain.UpdateBlockList:
		list := NormalizeEntries(u.Domains)
		changed = !slices.Equal(list, s.policy.BlockList)
		s.policy.BlockList = list
		key, value = domain.KeyBlockedDomains, list
	case domain.UpdateAllowList:
		list := NormalizeEntries(u.Domains)
		changed = !slices.Equal(list, s.policy.AllowList)
		s.policy.AllowList = list
		key, value = domain.KeyWhitelistedDomains, list
	case domain.UpdateImages:
		changed = s.policy.ImagesBlocked != u.Enabled
		s.policy.ImagesBlocked = u.Enabled
		key, value = domain.KeyMediaBlocking, u.Enabled
	case domain.UpdateVideos:
		changed = s.policy.VideosBlocked != u.Enabled
		s.policy.VideosBlocked = u.Enabled
		key, value = domain.KeyVideosBlocking, u.Enabled
	case domain.UpdateEnforcement:
		changed = s.policy.EnforcementEnabled != u.Enabled
		s.policy.EnforcementEnabled = u.Enabled
		key, value = domain.KeyEnforcement, u.Enabled
	default:
		return false, fmt.Errorf("unknown policy update: %q", u.Kind)
	}

	// Persisted on every update, changed or not.
	return changed, s.persist(ctx, key, value)
}

// SetImages sets the image suppression flag (local toggle).
func (s *Store) SetImages(ctx context.Context, blocked bool) error {
	_, err := s.Apply(ctx, domain.PolicyUpdate{Kind: domain.UpdateImages, Enabled: blocked})
	return err
}

// SetVideos sets the video suppression flag (local toggle).
func (s *Store) SetVideos(ctx context.Context, blocked bool) error {
	_, err := s.Apply(ctx, domain.PolicyUpdate{Kind: domain.UpdateVideos, Enabled: blocked})
	return err
}

// Decide evaluates a domain against the current policy.
func (s *Store) Decide(d string) domain.Decision {
	return Decide(d, s.policy)
}

func (s *Store) persist(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, map[string][]byte{key: raw}); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}
