// Package featureflags evaluates the FEATURE_FLAGS setting.
//
// The setting is a comma-separated list of name=value pairs, for example
// "presigned_uploads=off,realtime_notifications=25%". A value is on, off or
// a percentage rollout that buckets users deterministically by ID.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Flags consulted by the API.
const (
	// PresignedUploads gates POST /s3-presigned-upload.
	PresignedUploads = "presigned_uploads"
	// RealtimeNotifications gates the /ws notification socket.
	RealtimeNotifications = "realtime_notifications"
)

// defaults apply to known flags that FEATURE_FLAGS leaves out. Unknown,
// unconfigured flags are off.
var defaults = map[string]bool{
	PresignedUploads:      true,
	RealtimeNotifications: true,
}

// rule is a parsed flag value. percent is 0 for off and 100 for on.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1", "yes":
		return rule{raw: value, percent: 100}, true
	case "off", "false", "0", "no":
		return rule{raw: value, percent: 0}, true
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if !strings.HasSuffix(value, "%") || err != nil || pct < 0 || pct > 100 {
		return rule{}, false
	}
	return rule{raw: value, percent: pct}, true
}

// Manager holds the parsed flags. The zero value and nil both fall back to defaults.
type Manager struct {
	rules   map[string]rule
	invalid []string
}

// NewManager parses a FEATURE_FLAGS string. Malformed entries are skipped
// and reported by Invalid.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name, value = normalize(name), normalize(value)
		if !ok || name == "" {
			m.invalid = append(m.invalid, entry)
			continue
		}
		r, ok := parseRule(value)
		if !ok {
			m.invalid = append(m.invalid, entry)
			continue
		}
		m.rules[name] = r
	}
	return m
}

// Invalid lists the entries NewManager could not parse.
func (m *Manager) Invalid() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.invalid...)
}

// Enabled reports whether the flag is on for userID. Partial rollouts never
// include the anonymous user (ID 0).
func (m *Manager) Enabled(name string, userID uint) bool {
	name = normalize(name)
	var r rule
	var ok bool
	if m != nil {
		r, ok = m.rules[name]
	}
	if !ok {
		return defaults[name]
	}

	switch {
	case r.percent >= 100:
		return true
	case r.percent <= 0, userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

// Raw returns the configured values as written.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every known and configured flag for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(defaults))
	for _, name := range m.names() {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func (m *Manager) names() []string {
	seen := make(map[string]struct{}, len(defaults))
	for name := range defaults {
		seen[name] = struct{}{}
	}
	if m != nil {
		for name := range m.rules {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bucket maps (flag, user) onto 0..99 so each flag rolls out to a different slice of users.
func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
