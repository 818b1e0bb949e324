package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Event names on the sync channel.
const (
	EventWebUsage = "web_usage"

	EventBlocklistUpdated   = "website_blacklist_updated"
	EventAllowlistUpdated   = "website_whitelist_updated"
	EventMediaBlocking      = "media_blocking_updated"
	EventVideosBlocking     = "videos_blocking_updated"
	EventEnforcementUpdated = "enforcement_mode_updated"

	EventSuccess = "success"
	EventError   = "error"
)

// ErrUnknownEvent is returned by DecodeUpdate for events that carry no
// policy update.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is one message on the wire: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type websitesPayload struct {
	Websites *[]string `json:"websites"`
}

type enabledPayload struct {
	Enabled *bool `json:"enabled"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// EncodeUsage builds a web_usage message carrying the whole ledger.
func EncodeUsage(usage domain.SiteUsage) ([]byte, error) {
	if usage == nil {
		usage = domain.SiteUsage{}
	}
	data, err := json.Marshal(usage)
	if err != nil {
		return nil, fmt.Errorf("failed to encode usage: %w", err)
	}
	return json.Marshal(Envelope{Event: EventWebUsage, Data: data})
}

// Encode builds a message for an arbitrary event (used by test peers).
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeUpdate turns a policy event into a PolicyUpdate. Payloads missing
// their field, or with the wrong type, are rejected.
func DecodeUpdate(env Envelope) (domain.PolicyUpdate, error) {
	switch env.Event {
	case EventBlocklistUpdated, EventAllowlistUpdated:
		var p websitesPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return domain.PolicyUpdate{}, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		if p.Websites == nil {
			return domain.PolicyUpdate{}, fmt.Errorf("malformed %s payload: missing websites", env.Event)
		}
		kind := domain.UpdateBlockList
		if env.Event == EventAllowlistUpdated {
			kind = domain.UpdateAllowList
		}
		return domain.PolicyUpdate{Kind: kind, Domains: *p.Websites}, nil

	case EventMediaBlocking, EventVideosBlocking, EventEnforcementUpdated:
		var p enabledPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return domain.PolicyUpdate{}, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		if p.Enabled == nil {
			return domain.PolicyUpdate{}, fmt.Errorf("malformed %s payload: missing enabled", env.Event)
		}
		kind := domain.UpdateImages
		switch env.Event {
		case EventVideosBlocking:
			kind = domain.UpdateVideos
		case EventEnforcementUpdated:
			kind = domain.UpdateEnforcement
		}
		return domain.PolicyUpdate{Kind: kind, Enabled: *p.Enabled}, nil
	}
	return domain.PolicyUpdate{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// serverMessage extracts a human-readable message from success/error
// payloads, which may be a bare string or {"message": "..."}.
func serverMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var p messagePayload
	if err := json.Unmarshal(raw, &p); err == nil && p.Message != "" {
		return p.Message
	}
	return string(raw)
}
