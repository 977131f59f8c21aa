// Package access gates protected paths on the session cookie.
package access

import (
	"path"
	"strings"

	"github.com/autoscripty/internal/config"
)

// Matcher answers which paths the middleware inspects and which it protects
type Matcher struct {
	protected      []string
	skipPrefixes   []string
	skipPaths      map[string]struct{}
	skipExtensions map[string]struct{}
}

// NewMatcher copies the policy lists; later changes to policy have no effect
func NewMatcher(policy config.Policy) *Matcher {
	m := &Matcher{
		protected:      append([]string(nil), policy.ProtectedPrefixes...),
		skipPrefixes:   append([]string(nil), policy.SkipPrefixes...),
		skipPaths:      make(map[string]struct{}, len(policy.SkipPaths)),
		skipExtensions: make(map[string]struct{}, len(policy.SkipExtensions)),
	}
	for _, p := range policy.SkipPaths {
		m.skipPaths[p] = struct{}{}
	}
	for _, ext := range policy.SkipExtensions {
		m.skipExtensions[strings.ToLower(ext)] = struct{}{}
	}
	return m
}

// Skip reports whether the middleware should not run for p at all
func (m *Matcher) Skip(p string) bool {
	if _, ok := m.skipPaths[p]; ok {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	_, ok := m.skipExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// IsProtected reports whether p starts with any protected prefix. Matching is
// a plain string prefix, so "/studio" also covers "/studio-x".
func (m *Matcher) IsProtected(p string) bool {
	for _, prefix := range m.protected {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
