package authgate

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.AccessKey = []byte("secret")
	return cfg
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Token.AccessTTL != 30*time.Minute {
		t.Fatalf("access TTL = %s, want 30m", cfg.Token.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("refresh TTL = %s, want 720h", cfg.Token.RefreshTTL)
	}
	if cfg.Permission.CacheTTL != time.Hour {
		t.Fatalf("permission cache TTL = %s, want 1h", cfg.Permission.CacheTTL)
	}
	if cfg.Gate.AccessCookieName != "token" || cfg.Gate.RefreshCookieName != "refresh_token" {
		t.Fatalf("unexpected cookie names: %q / %q", cfg.Gate.AccessCookieName, cfg.Gate.RefreshCookieName)
	}
	if cfg.Security.RefreshRotationEnabled {
		t.Fatal("rotation must default off")
	}
	if cfg.Security.RecheckActiveOnVerify {
		t.Fatal("active recheck must default off")
	}

	// The default config has no signing key and must not validate as-is.
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without a key must fail validation")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero access TTL", func(c *Config) { c.Token.AccessTTL = 0 }, "TTL"},
		{"access outlives refresh", func(c *Config) { c.Token.AccessTTL = c.Token.RefreshTTL }, "shorter"},
		{"no key", func(c *Config) { c.Token.AccessKey = nil }, "key"},
		{"bad method", func(c *Config) { c.Token.SigningMethod = "rs256" }, "signing method"},
		{"no prefix", func(c *Config) { c.Session.RedisPrefix = "" }, "prefix"},
		{"zero cache TTL", func(c *Config) { c.Permission.CacheTTL = 0 }, "cache TTL"},
		{"zero shards", func(c *Config) { c.Permission.CacheShards = 0 }, "shards"},
		{"no cookie name", func(c *Config) { c.Gate.AccessCookieName = "" }, "cookie"},
	}

	for _, tc := range cases {
		cfg := validTestConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation failure", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}

	if err := validTestConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ACCESS_TTL", "15m")
	t.Setenv("REFRESH_TTL", "168h")
	t.Setenv("ACCESS_SIGNING_KEY", "env-secret")
	t.Setenv("REFRESH_SIGNING_KEY", "env-refresh-secret")
	t.Setenv("PERMISSION_CACHE_TTL", "10m")
	t.Setenv("REFRESH_ROTATION_ENABLED", "true")
	t.Setenv("AUTH_ALLOW_PATHS", "/healthz, /public/, /")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}

	if cfg.Token.AccessTTL != 15*time.Minute || cfg.Token.RefreshTTL != 168*time.Hour {
		t.Fatalf("TTLs: %s / %s", cfg.Token.AccessTTL, cfg.Token.RefreshTTL)
	}
	if string(cfg.Token.AccessKey) != "env-secret" || string(cfg.Token.RefreshKey) != "env-refresh-secret" {
		t.Fatal("signing keys not read from env")
	}
	if cfg.Permission.CacheTTL != 10*time.Minute {
		t.Fatalf("cache TTL = %s", cfg.Permission.CacheTTL)
	}
	if !cfg.Security.RefreshRotationEnabled {
		t.Fatal("rotation not enabled from env")
	}

	// Entries ending in "/" become prefixes; bare "/" stays an exact path.
	if len(cfg.Gate.AllowPaths) != 2 || cfg.Gate.AllowPaths[0] != "/healthz" || cfg.Gate.AllowPaths[1] != "/" {
		t.Fatalf("allow paths: %v", cfg.Gate.AllowPaths)
	}
	if len(cfg.Gate.AllowPrefixes) != 1 || cfg.Gate.AllowPrefixes[0] != "/public/" {
		t.Fatalf("allow prefixes: %v", cfg.Gate.AllowPrefixes)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("env config must validate: %v", err)
	}
}

func TestConfigFromEnvMalformed(t *testing.T) {
	t.Setenv("ACCESS_TTL", "not-a-duration")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("malformed ACCESS_TTL must error")
	}
}

func TestCloneConfigIsolation(t *testing.T) {
	original := validTestConfig()
	clone := cloneConfig(original)

	clone.Token.AccessKey[0] ^= 0xff
	clone.Gate.AllowPaths[0] = "/mutated"

	if original.Token.AccessKey[0] == clone.Token.AccessKey[0] {
		t.Fatal("key slice shared between clone and original")
	}
	if original.Gate.AllowPaths[0] == "/mutated" {
		t.Fatal("allow path slice shared between clone and original")
	}
}
