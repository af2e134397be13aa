// Package featureflags evaluates the FEATURE_FLAGS setting.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Known flags. Both default to off, which keeps the historical behavior.
const (
	// AdminDraftVisibility lets admins read drafts they do not own.
	AdminDraftVisibility = "admin_draft_visibility"
	// ScopedStatusFilter limits non-published post listings to the caller's own posts.
	ScopedStatusFilter = "scoped_status_filter"
)

var known = []string{AdminDraftVisibility, ScopedStatusFilter}

// Manager evaluates feature flags defined in a key=value list.
// Example: "admin_draft_visibility=on,scoped_status_filter=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
// Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given user.
// Values: on/true/1, off/false/0, or N% for a deterministic per-user rollout.
// Percentage rollouts never include anonymous callers (userID 0).
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil, pct <= 0:
		return false
	case pct >= 100:
		return true
	case userID == 0:
		return false
	}
	return rolloutBucket(name, userID) < pct
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot returns evaluated status for one user, covering every known flag
// plus any extra configured ones.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags)+len(known))
	for _, name := range m.Names() {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

// Names lists known and configured flags in sorted order.
func (m *Manager) Names() []string {
	seen := make(map[string]struct{}, len(m.flags)+len(known))
	names := make([]string, 0, len(m.flags)+len(known))
	add := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for _, n := range known {
		add(n)
	}
	for n := range m.flags {
		add(n)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", normalize(name), userID)
	return int(h.Sum32() % 100)
}
