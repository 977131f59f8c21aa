package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingProvider is returned by Load when the provider URL or public key
// is not set.
var ErrMissingProvider = errors.New("provider configuration missing")

// Config holds the application configuration
type Config struct {
	Environment   string
	ServerAddress string
	Provider      ProviderConfig
	Storage       StorageConfig
	Session       SessionConfig
	Access        AccessConfig
	CORS          CORSConfig
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// ProviderConfig holds the hosted backend endpoint and key
type ProviderConfig struct {
	URL         string
	PublicKey   string
	ScriptTable string
	Timeout     time.Duration
	// Consecutive provider failures that open the circuit breaker, and how
	// long it stays open.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// StorageConfig selects where scripts are written
type StorageConfig struct {
	Backend      string // "provider" or "sqlite"
	DatabasePath string
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	Secret         string
	CookieName     string
	CookieDomain   string
	SecureCookie   bool
	CookieDuration time.Duration
}

// AccessConfig holds the route protection policy
type AccessConfig struct {
	PolicyFile string
	Policy     Policy
}

// MemoryProviderURL selects the in-process provider instead of a hosted backend
const MemoryProviderURL = "memory://"

// InMemory reports whether the in-process provider is configured
func (p ProviderConfig) InMemory() bool {
	return p.URL == MemoryProviderURL
}

// Storage backends
const (
	StorageProvider = "provider"
	StorageSQLite   = "sqlite"
)

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	corsOrigins := getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Provider: ProviderConfig{
			URL:         providerURL(os.Getenv("SUPABASE_URL")),
			PublicKey:   os.Getenv("SUPABASE_PUBLISHABLE_KEY"),
			ScriptTable: getEnv("SCRIPT_TABLE", "text-script"),
			Timeout:     getDuration("PROVIDER_TIMEOUT", 10*time.Second),

			BreakerThreshold: getInt("PROVIDER_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getDuration("PROVIDER_BREAKER_COOLDOWN", 30*time.Second),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", StorageProvider),
			DatabasePath: getEnv("DATABASE_PATH", "./data/autoscripty.db"),
		},
		Session: SessionConfig{
			Secret:         getEnv("SESSION_SECRET", "change-me-in-production-secret-key"),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "scripty-session"),
			CookieDomain:   os.Getenv("SESSION_COOKIE_DOMAIN"),
			SecureCookie:   getEnv("SESSION_SECURE_COOKIE", "false") == "true",
			CookieDuration: getDuration("SESSION_COOKIE_DURATION", 7*24*time.Hour),
		},
		Access: AccessConfig{
			PolicyFile: os.Getenv("ACCESS_POLICY_FILE"),
			Policy:     DefaultPolicy(),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseCommaSeparatedList(corsOrigins),
		},
	}

	var missing []string
	if cfg.Provider.URL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if cfg.Provider.PublicKey == "" && !cfg.Provider.InMemory() {
		missing = append(missing, "SUPABASE_PUBLISHABLE_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s must be set", ErrMissingProvider, strings.Join(missing, ", "))
	}

	switch cfg.Storage.Backend {
	case StorageProvider, StorageSQLite:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}

	if cfg.Access.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.Access.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Access.Policy = policy
	}

	if prefixes := os.Getenv("PROTECTED_ROUTES"); prefixes != "" {
		cfg.Access.Policy.ProtectedPrefixes = parseCommaSeparatedList(prefixes)
	}

	return cfg, nil
}

func providerURL(raw string) string {
	if raw == MemoryProviderURL {
		return raw
	}
	return strings.TrimRight(raw, "/")
}

// parseCommaSeparatedList splits a comma-separated string into a slice
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return []string{}
	}

	items := strings.Split(s, ",")
	result := make([]string, 0, len(items))

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}

	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
