package authgate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/selcaux/authgate/internal/audit"
	internalmetrics "github.com/selcaux/authgate/internal/metrics"
	"github.com/selcaux/authgate/password"
	"github.com/selcaux/authgate/permission"
	"github.com/selcaux/authgate/session"
	"github.com/selcaux/authgate/token"
)

// Builder assembles an [Engine]. Configure, then call Build exactly once;
// the builder is not reusable.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	roleSource   permission.RoleSource
	auditSink    AuditSink
	now          func() time.Time

	built bool
}

// New returns a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration. The config is cloned, so
// later mutation of cfg by the caller has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions and the token blacklist.
// Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the user lookup collaborator. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithRoleSource sets the role/permission assignment collaborator. Required.
func (b *Builder) WithRoleSource(rs permission.RoleSource) *Builder {
	b.roleSource = rs
	return b
}

// WithAuditSink sets the destination for audit events. Optional; defaults to
// a no-op sink when auditing is enabled without one.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides the engine's clock. For tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, wires the engine's components, and
// returns the ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("authgate: builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("authgate: redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("authgate: user provider required")
	}
	if b.roleSource == nil {
		return nil, errors.New("authgate: role source required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		AccessTTL:     b.config.Token.AccessTTL,
		RefreshTTL:    b.config.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(b.config.Token.SigningMethod),
		AccessKey:     b.config.Token.AccessKey,
		RefreshKey:    b.config.Token.RefreshKey,
		Issuer:        b.config.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(b.config.Password)
	if err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	metrics := internalmetrics.New(internalmetrics.Config{Enabled: b.config.Metrics.Enabled})

	resolver := permission.NewResolver(b.roleSource, permission.Config{
		TTL:    b.config.Permission.CacheTTL,
		Shards: b.config.Permission.CacheShards,
		Now:    now,
		Hooks: permission.Hooks{
			OnCacheHit:   func() { metrics.Inc(internalmetrics.MetricPermCacheHit) },
			OnCacheMiss:  func() { metrics.Inc(internalmetrics.MetricPermCacheMiss) },
			OnInvalidate: func() { metrics.Inc(internalmetrics.MetricPermCacheInvalidate) },
		},
	})

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    b.config.Audit.Enabled,
		BufferSize: b.config.Audit.BufferSize,
		DropIfFull: b.config.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return &Engine{
		config:   b.config,
		codec:    codec,
		sessions: session.NewStore(b.redis, b.config.Session.RedisPrefix),
		resolver: resolver,
		hasher:   hasher,
		users:    b.userProvider,
		audit:    dispatcher,
		metrics:  metrics,
		now:      now,
	}, nil
}
