package events

import "strings"

// PrivateApplication replaces the identity of applications excluded by the
// privacy policy wherever it would otherwise be recorded.
const PrivateApplication = "[private]"

// PrivacyPolicy enforces allow-list rules on the foreground context.
// The zero value permits everything.
type PrivacyPolicy struct {
	allowApps   map[string]struct{}
	allowURLs   []string
	dropUnknown bool
}

// NewPrivacyPolicy constructs an allow-list filter. Application names are
// compared case-insensitively with any ".exe" suffix removed; URLs match by
// prefix.
func NewPrivacyPolicy(allowApps, allowURLs []string, dropUnknown bool) PrivacyPolicy {
	policy := PrivacyPolicy{
		allowApps:   make(map[string]struct{}, len(allowApps)),
		allowURLs:   make([]string, 0, len(allowURLs)),
		dropUnknown: dropUnknown,
	}

	for _, app := range allowApps {
		name := NormalizeApplication(app)
		if name == "" {
			continue
		}
		policy.allowApps[name] = struct{}{}
	}

	for _, url := range allowURLs {
		trimmed := strings.TrimSpace(url)
		if trimmed == "" {
			continue
		}
		policy.allowURLs = append(policy.allowURLs, strings.ToLower(trimmed))
	}

	return policy
}

// Enabled reports whether any rule is configured.
func (p PrivacyPolicy) Enabled() bool {
	return len(p.allowApps) > 0 || len(p.allowURLs) > 0
}

// Allows reports whether activity in app (optionally at url) may be recorded.
// An empty url is only checked against URL rules when dropUnknown is set.
func (p PrivacyPolicy) Allows(app, url string) bool {
	if !p.Enabled() {
		return true
	}

	if len(p.allowApps) > 0 {
		name := NormalizeApplication(app)
		if name == "" {
			if p.dropUnknown {
				return false
			}
		} else if _, ok := p.allowApps[name]; !ok {
			return false
		}
	}

	if len(p.allowURLs) > 0 {
		u := strings.ToLower(strings.TrimSpace(url))
		if u == "" {
			return !p.dropUnknown
		}
		for _, prefix := range p.allowURLs {
			if strings.HasPrefix(u, prefix) {
				return true
			}
		}
		return false
	}

	return true
}

// NormalizeApplication canonicalises an application name: lower case, no
// surrounding space, no ".exe" or ".app" suffix.
func NormalizeApplication(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, ".exe")
	n = strings.TrimSuffix(n, ".app")
	return n
}
