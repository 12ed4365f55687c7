// Package permission resolves the effective permission set of a user from
// externally-owned role data, with an invalidatable in-process cache.
//
// The cache is sharded: readers never block on writes for unrelated keys, and
// populating one user's entry never blocks resolution for another. TTL bounds
// staleness for ordinary reads; correctness-critical changes (role edits,
// deactivation) go through Invalidate / InvalidateForRole, which are visible
// to every Resolve call issued after they return. At most one in-flight
// resolution may still observe the pre-invalidation value.
package permission

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// Role is the external view of one assigned role.
type Role struct {
	ID   string
	Name string
	// IsSuperAdmin grants the wildcard regardless of the permission list.
	IsSuperAdmin bool
	// Permissions are "resource:action" names.
	Permissions []string
}

// RoleSource is the external collaborator owning role/permission assignment
// data. Implementations must be safe for concurrent use.
type RoleSource interface {
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	UserIDsWithRole(ctx context.Context, roleID string) ([]string, error)
}

// Set is a resolved permission set. The wildcard form means "all permissions
// granted" and is held by superusers and super-admin roles.
type Set struct {
	wildcard bool
	names    map[string]struct{}
}

// Wildcard returns the all-permissions set.
func Wildcard() Set { return Set{wildcard: true} }

// NewSet returns a set holding exactly the given permission names.
func NewSet(names ...string) Set {
	s := Set{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

// IsWildcard reports whether the set grants everything.
func (s Set) IsWildcard() bool { return s.wildcard }

// Has reports whether the set grants the named permission.
func (s Set) Has(name string) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Names returns the sorted permission names; nil for the wildcard set.
func (s Set) Names() []string {
	if s.wildcard || len(s.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Hooks are optional observability callbacks. Nil funcs are skipped.
type Hooks struct {
	OnCacheHit   func()
	OnCacheMiss  func()
	OnInvalidate func()
}

// Config controls the resolver cache.
type Config struct {
	TTL    time.Duration
	Shards int
	Hooks  Hooks
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

type cacheEntry struct {
	set      Set
	cachedAt time.Time
}

type cacheShard struct {
	mu sync.RWMutex
	// gen advances on every invalidation touching this shard. A resolution
	// that started before the invalidation must not repopulate the cache.
	gen     uint64
	entries map[string]cacheEntry
}

// Resolver computes and caches effective permission sets.
type Resolver struct {
	source RoleSource
	ttl    time.Duration
	hooks  Hooks
	now    func() time.Time
	shards []*cacheShard
}

// NewResolver creates a resolver over the given role source.
func NewResolver(source RoleSource, cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	shards := make([]*cacheShard, cfg.Shards)
	for i := range shards {
		shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	return &Resolver{
		source: source,
		ttl:    cfg.TTL,
		hooks:  cfg.Hooks,
		now:    cfg.Now,
		shards: shards,
	}
}

func (r *Resolver) shard(userID string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Resolve returns the user's effective permission set. Superusers resolve to
// the wildcard without touching the cache or the role source. Otherwise a
// fresh cache entry is served, or the role source is queried and the result
// cached under the configured TTL.
func (r *Resolver) Resolve(ctx context.Context, userID string, isSuperuser bool) (Set, error) {
	if isSuperuser {
		return Wildcard(), nil
	}

	shard := r.shard(userID)
	now := r.now()

	shard.mu.RLock()
	entry, ok := shard.entries[userID]
	gen := shard.gen
	shard.mu.RUnlock()

	if ok && entry.cachedAt.Add(r.ttl).After(now) {
		if r.hooks.OnCacheHit != nil {
			r.hooks.OnCacheHit()
		}
		return entry.set, nil
	}
	if r.hooks.OnCacheMiss != nil {
		r.hooks.OnCacheMiss()
	}

	// Query outside any lock: populating this key must not block other keys.
	roles, err := r.source.RolesForUser(ctx, userID)
	if err != nil {
		return Set{}, err
	}
	set := flatten(roles)

	shard.mu.Lock()
	// Discard the result if an invalidation raced the query.
	if shard.gen == gen {
		shard.entries[userID] = cacheEntry{set: set, cachedAt: now}
	}
	shard.mu.Unlock()

	return set, nil
}

func flatten(roles []Role) Set {
	for _, role := range roles {
		if role.IsSuperAdmin {
			return Wildcard()
		}
	}
	names := make([]string, 0, 8)
	for _, role := range roles {
		names = append(names, role.Permissions...)
	}
	return NewSet(names...)
}

// Check reports whether the user holds the required permission.
func (r *Resolver) Check(ctx context.Context, userID string, isSuperuser bool, required string) (bool, error) {
	set, err := r.Resolve(ctx, userID, isSuperuser)
	if err != nil {
		return false, err
	}
	return set.Has(required), nil
}

// HasRole reports whether the user holds the named role. Superusers bypass.
// Role membership is read straight from the source, uncached: role checks are
// rare next to permission checks and must see assignment changes immediately.
func (r *Resolver) HasRole(ctx context.Context, userID string, isSuperuser bool, roleName string) (bool, error) {
	if isSuperuser {
		return true, nil
	}
	roles, err := r.source.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate removes the user's cache entry. Idempotent no-op if absent.
func (r *Resolver) Invalidate(userID string) {
	shard := r.shard(userID)
	shard.mu.Lock()
	shard.gen++
	delete(shard.entries, userID)
	shard.mu.Unlock()
	if r.hooks.OnInvalidate != nil {
		r.hooks.OnInvalidate()
	}
}

// InvalidateForRole invalidates every user currently holding the role.
// Callers invoke it when a role's permission set or super-admin flag changes,
// on role deletion, and when a user's assignments or active flag change.
func (r *Resolver) InvalidateForRole(ctx context.Context, roleID string) error {
	userIDs, err := r.source.UserIDsWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		r.Invalidate(userID)
	}
	return nil
}

// Clear drops every cache entry. For shutdown and test teardown.
func (r *Resolver) Clear() {
	for _, shard := range r.shards {
		shard.mu.Lock()
		shard.gen++
		shard.entries = make(map[string]cacheEntry)
		shard.mu.Unlock()
	}
}
