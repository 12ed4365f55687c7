package authgate

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/selcaux/authgate/password"
	"github.com/selcaux/authgate/token"
)

// Config groups all engine settings. Configure once, then treat as immutable;
// Build clones it so later mutation of the caller's copy has no effect.
type Config struct {
	Token      TokenConfig
	Session    SessionConfig
	Permission PermissionConfig
	Password   password.Config
	Security   SecurityConfig
	Gate       GateConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// TokenConfig controls signing and lifetimes of both credential kinds.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	AccessKey     []byte
	// RefreshKey optionally separates the refresh key space from the access
	// key space. Empty reuses AccessKey.
	RefreshKey []byte
	Issuer     string
}

// SessionConfig controls the Redis session store.
type SessionConfig struct {
	RedisPrefix string
}

// PermissionConfig controls the permission resolver cache.
type PermissionConfig struct {
	CacheTTL    time.Duration
	CacheShards int
}

// SecurityConfig holds the policy toggles of the token lifecycle.
type SecurityConfig struct {
	// RefreshRotationEnabled issues a replacement refresh token on every
	// refresh and revokes the presented session. Off by default.
	RefreshRotationEnabled bool
	// RecheckActiveOnVerify re-reads the user record on every access-token
	// verification and rejects inactive accounts at the token layer. Off by
	// default; when off, is_active is enforced at login/refresh time and by
	// the RequireActive guard.
	RecheckActiveOnVerify bool
}

// GateConfig configures the request boundary: credential transport and the
// allow-list of unauthenticated paths.
type GateConfig struct {
	AccessCookieName  string
	RefreshCookieName string
	// AllowPaths bypass authentication on exact match, AllowPrefixes on
	// prefix match. Classification runs before credential extraction.
	AllowPaths    []string
	AllowPrefixes []string
	SecureCookies bool
	SameSite      http.SameSite
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a copy of the default configuration. The signing key
// is intentionally absent; Validate rejects the config until one is set.
func DefaultConfig() Config {
	return cloneConfig(defaultConfig())
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: string(token.MethodHS256),
			Issuer:        "authgate",
		},
		Session: SessionConfig{
			RedisPrefix: "ag",
		},
		Permission: PermissionConfig{
			CacheTTL:    time.Hour,
			CacheShards: 32,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Gate: GateConfig{
			AccessCookieName:  "token",
			RefreshCookieName: "refresh_token",
			AllowPaths:        []string{"/", "/health"},
			AllowPrefixes:     []string{"/api/v1/auth/"},
			SameSite:          http.SameSiteLaxMode,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate checks the configuration for internally inconsistent or unsafe
// values. Build calls it; callers constructing configs by hand may too.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if len(c.Token.AccessKey) == 0 {
		return errors.New("access signing key required")
	}
	switch token.SigningMethod(c.Token.SigningMethod) {
	case token.MethodHS256, token.MethodEd25519:
	default:
		return fmt.Errorf("unsupported signing method %q", c.Token.SigningMethod)
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix required")
	}
	if c.Permission.CacheTTL <= 0 {
		return errors.New("permission cache TTL must be positive")
	}
	if c.Permission.CacheShards <= 0 {
		return errors.New("permission cache shards must be positive")
	}
	if c.Gate.AccessCookieName == "" || c.Gate.RefreshCookieName == "" {
		return errors.New("cookie names required")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.Token.AccessKey = append([]byte(nil), c.Token.AccessKey...)
	out.Token.RefreshKey = append([]byte(nil), c.Token.RefreshKey...)
	out.Gate.AllowPaths = append([]string(nil), c.Gate.AllowPaths...)
	out.Gate.AllowPrefixes = append([]string(nil), c.Gate.AllowPrefixes...)
	return out
}

// ConfigFromEnv builds a config from the recognized environment variables:
//
//	ACCESS_TTL, REFRESH_TTL         Go durations ("30m", "720h")
//	ACCESS_SIGNING_KEY              required
//	REFRESH_SIGNING_KEY             optional, defaults to the access key
//	PERMISSION_CACHE_TTL            Go duration, default 1h
//	REFRESH_ROTATION_ENABLED        "true"/"false", default false
//	AUTH_ALLOW_PATHS                comma-separated; entries ending in "/"
//	                                are treated as prefixes
//
// Unset variables keep their defaults. Malformed values are an error rather
// than silently ignored.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()

	if v := os.Getenv("ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("ACCESS_TTL: %w", err)
		}
		cfg.Token.AccessTTL = d
	}
	if v := os.Getenv("REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("REFRESH_TTL: %w", err)
		}
		cfg.Token.RefreshTTL = d
	}
	if v := os.Getenv("ACCESS_SIGNING_KEY"); v != "" {
		cfg.Token.AccessKey = []byte(v)
	}
	if v := os.Getenv("REFRESH_SIGNING_KEY"); v != "" {
		cfg.Token.RefreshKey = []byte(v)
	}
	if v := os.Getenv("PERMISSION_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("PERMISSION_CACHE_TTL: %w", err)
		}
		cfg.Permission.CacheTTL = d
	}
	if v := os.Getenv("REFRESH_ROTATION_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("REFRESH_ROTATION_ENABLED: %w", err)
		}
		cfg.Security.RefreshRotationEnabled = b
	}
	if v := os.Getenv("AUTH_ALLOW_PATHS"); v != "" {
		cfg.Gate.AllowPaths = nil
		cfg.Gate.AllowPrefixes = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if strings.HasSuffix(p, "/") && p != "/" {
				cfg.Gate.AllowPrefixes = append(cfg.Gate.AllowPrefixes, p)
			} else {
				cfg.Gate.AllowPaths = append(cfg.Gate.AllowPaths, p)
			}
		}
	}

	return cfg, nil
}
