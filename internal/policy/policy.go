// Package policy decides whether a navigation is allowed and holds the
// block/allow policy mirrored from the control peer.
package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// AllowListed reports whether the domain is exempted by the allow list.
// An entry matches the domain itself and any subdomain of it, on a label
// boundary: "mail.example.com" matches "example.com", "badexample.com" does not.
func AllowListed(d string, allowList []string) (string, bool) {
	if d == "" {
		return "", false
	}
	for _, entry := range allowList {
		if entry == "" {
			continue
		}
		if d == entry || strings.HasSuffix(d, "."+entry) {
			return entry, true
		}
	}
	return "", false
}

// Blocked reports whether the domain is on the block list (exact match).
func Blocked(d string, blockList []string) bool {
	if d == "" {
		return false
	}
	for _, entry := range blockList {
		if d == entry {
			return true
		}
	}
	return false
}

// Decide evaluates a normalized domain against the policy.
// Redirect requires enforcement on, a non-empty domain that is not
// allow-listed, and an exact block-list hit. Pure, no I/O.
func Decide(d string, p domain.Policy) domain.Decision {
	dec := domain.Decision{Verdict: domain.Allow, Domain: d}

	switch {
	case d == "":
		dec.Reason = "no domain"
	case !Blocked(d, p.BlockList):
		dec.Reason = "not blocked"
	case !p.EnforcementEnabled:
		dec.MatchedRule = d
		dec.Reason = "enforcement disabled"
	default:
		if entry, ok := AllowListed(d, p.AllowList); ok {
			dec.MatchedRule = entry
			dec.Reason = "allow-listed"
			return dec
		}
		dec.Verdict = domain.Redirect
		dec.MatchedRule = d
		dec.Reason = "blocked"
	}
	return dec
}
