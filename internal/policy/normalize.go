package policy

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a URL into a comparable domain.
// Only http and https URLs qualify. The hostname is lowercased and a
// single leading "www." label is removed.
func Normalize(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", false
	}
	return host, true
}

// IsTrackable reports whether the URL has a scheme the tracker handles.
func IsTrackable(rawURL string) bool {
	_, ok := Normalize(rawURL)
	return ok
}

// NormalizeEntry canonicalizes a block/allow list entry as sent by the
// control peer. Entries may carry a scheme, a "www." label or a path.
func NormalizeEntry(entry string) string {
	e := strings.ToLower(strings.TrimSpace(entry))
	if i := strings.Index(e, "://"); i >= 0 {
		e = e[i+3:]
	}
	if i := strings.IndexAny(e, "/?#"); i >= 0 {
		e = e[:i]
	}
	if i := strings.LastIndex(e, ":"); i >= 0 && !strings.Contains(e[i:], "]") {
		e = e[:i]
	}
	e = strings.TrimSuffix(e, ".")
	return strings.TrimPrefix(e, "www.")
}

// NormalizeEntries normalizes a list, dropping empty and duplicate entries.
// Order of first occurrence is kept.
func NormalizeEntries(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		e := NormalizeEntry(raw)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
