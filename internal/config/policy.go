package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the route protection policy consulted by the access middleware.
// It is read once at startup and never changed afterwards.
type Policy struct {
	// ProtectedPrefixes require a valid session; matched with strings.HasPrefix.
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	// SkipPrefixes and SkipExtensions are never inspected by the middleware.
	SkipPrefixes   []string `yaml:"skip_prefixes"`
	SkipPaths      []string `yaml:"skip_paths"`
	SkipExtensions []string `yaml:"skip_extensions"`
	// RedirectPath is where unauthenticated requests are sent.
	RedirectPath    string `yaml:"redirect_path"`
	RedirectMessage string `yaml:"redirect_message"`
}

// DefaultPolicy protects /studio and skips static assets.
func DefaultPolicy() Policy {
	return Policy{
		ProtectedPrefixes: []string{"/studio"},
		SkipPrefixes:      []string{"/assets/", "/static/"},
		SkipPaths:         []string{"/favicon.ico"},
		SkipExtensions:    []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp"},
		RedirectPath:      "/",
		RedirectMessage:   "Please sign in to access this page",
	}
}

// LoadPolicy reads a YAML policy file. Fields left out of the file keep their
// default values.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read access policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document over DefaultPolicy.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("invalid access policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks that every prefix and path is absolute.
func (p Policy) Validate() error {
	for _, prefix := range p.ProtectedPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("invalid access policy: protected prefix %q must start with /", prefix)
		}
	}
	for _, prefix := range p.SkipPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("invalid access policy: skip prefix %q must start with /", prefix)
		}
	}
	if !strings.HasPrefix(p.RedirectPath, "/") {
		return fmt.Errorf("invalid access policy: redirect path %q must start with /", p.RedirectPath)
	}
	for _, ext := range p.SkipExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("invalid access policy: extension %q must start with a dot", ext)
		}
	}
	return nil
}
