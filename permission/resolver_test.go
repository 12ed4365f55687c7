package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSource is a mutable in-memory RoleSource.
type fakeSource struct {
	mu      sync.Mutex
	roles   map[string][]Role
	byRole  map[string][]string
	queries int
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		roles:  make(map[string][]Role),
		byRole: make(map[string][]string),
	}
}

func (f *fakeSource) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[userID], nil
}

func (f *fakeSource) UserIDsWithRole(_ context.Context, roleID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byRole[roleID], nil
}

func (f *fakeSource) setRoles(userID string, roles ...Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = roles
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func TestSuperuserAlwaysWildcard(t *testing.T) {
	src := newFakeSource()
	r := NewResolver(src, Config{})

	set, err := r.Resolve(context.Background(), "root", true)
	require.NoError(t, err)
	require.True(t, set.IsWildcard())
	require.True(t, set.Has("anything:at-all"))
	// No cache lookup, no external query.
	require.Equal(t, 0, src.queryCount())
}

func TestResolveUnionsRolePermissions(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1",
		Role{ID: "r-editor", Name: "editor", Permissions: []string{"content:read", "content:write"}},
		Role{ID: "r-viewer", Name: "viewer", Permissions: []string{"content:read"}},
	)
	r := NewResolver(src, Config{})

	set, err := r.Resolve(context.Background(), "u-1", false)
	require.NoError(t, err)
	require.False(t, set.IsWildcard())
	require.Equal(t, []string{"content:read", "content:write"}, set.Names())
	require.True(t, set.Has("content:write"))
	require.False(t, set.Has("content:delete"))
}

func TestSuperAdminRoleGrantsWildcard(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1", Role{ID: "r-admin", Name: "admin", IsSuperAdmin: true})
	r := NewResolver(src, Config{})

	set, err := r.Resolve(context.Background(), "u-1", false)
	require.NoError(t, err)
	require.True(t, set.IsWildcard())
}

func TestCacheHitUnderTTL(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1", Role{ID: "r-1", Name: "editor", Permissions: []string{"content:write"}})

	now := time.Now()
	clock := func() time.Time { return now }
	r := NewResolver(src, Config{TTL: time.Hour, Now: clock})

	ctx := context.Background()
	_, err := r.Resolve(ctx, "u-1", false)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "u-1", false)
	require.NoError(t, err)
	require.Equal(t, 1, src.queryCount(), "second resolve must hit the cache")

	// Past the TTL the entry is re-fetched.
	now = now.Add(61 * time.Minute)
	_, err = r.Resolve(ctx, "u-1", false)
	require.NoError(t, err)
	require.Equal(t, 2, src.queryCount())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1", Role{ID: "r-1", Name: "editor", Permissions: []string{"content:write"}})
	r := NewResolver(src, Config{})
	ctx := context.Background()

	ok, err := r.Check(ctx, "u-1", false, "content:delete")
	require.NoError(t, err)
	require.False(t, ok)

	src.setRoles("u-1", Role{ID: "r-1", Name: "editor", Permissions: []string{"content:write", "content:delete"}})
	// Without invalidation the stale set is still served.
	ok, err = r.Check(ctx, "u-1", false, "content:delete")
	require.NoError(t, err)
	require.False(t, ok)

	r.Invalidate("u-1")
	ok, err = r.Check(ctx, "u-1", false, "content:delete")
	require.NoError(t, err)
	require.True(t, ok, "updated permission set must be visible on the very next resolve")

	// Invalidating an absent key is a no-op.
	r.Invalidate("u-unknown")
}

func TestInvalidateForRoleTouchesEveryHolder(t *testing.T) {
	src := newFakeSource()
	editor := Role{ID: "r-editor", Name: "editor", Permissions: []string{"content:write"}}
	src.setRoles("u-1", editor)
	src.setRoles("u-2", editor)
	src.mu.Lock()
	src.byRole["r-editor"] = []string{"u-1", "u-2"}
	src.mu.Unlock()

	r := NewResolver(src, Config{})
	ctx := context.Background()

	for _, uid := range []string{"u-1", "u-2"} {
		ok, err := r.Check(ctx, uid, false, "content:delete")
		require.NoError(t, err)
		require.False(t, ok)
	}

	grown := Role{ID: "r-editor", Name: "editor", Permissions: []string{"content:write", "content:delete"}}
	src.setRoles("u-1", grown)
	src.setRoles("u-2", grown)
	require.NoError(t, r.InvalidateForRole(ctx, "r-editor"))

	for _, uid := range []string{"u-1", "u-2"} {
		ok, err := r.Check(ctx, uid, false, "content:delete")
		require.NoError(t, err)
		require.True(t, ok, "user %s", uid)
	}
}

func TestHasRole(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1", Role{ID: "r-1", Name: "editor"})
	r := NewResolver(src, Config{})
	ctx := context.Background()

	ok, err := r.HasRole(ctx, "u-1", false, "editor")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.HasRole(ctx, "u-1", false, "admin")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.HasRole(ctx, "whoever", true, "admin")
	require.NoError(t, err)
	require.True(t, ok, "superuser bypasses role membership")
}

func TestSourceErrorPropagates(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("db down")
	r := NewResolver(src, Config{})

	_, err := r.Resolve(context.Background(), "u-1", false)
	require.Error(t, err)
}

func TestClearDropsAllEntries(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1", Role{ID: "r-1", Name: "editor", Permissions: []string{"content:write"}})
	r := NewResolver(src, Config{})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "u-1", false)
	require.NoError(t, err)
	r.Clear()
	_, err = r.Resolve(ctx, "u-1", false)
	require.NoError(t, err)
	require.Equal(t, 2, src.queryCount())
}

func TestConcurrentResolveAndInvalidate(t *testing.T) {
	src := newFakeSource()
	src.setRoles("u-1", Role{ID: "r-1", Name: "editor", Permissions: []string{"content:write"}})
	r := NewResolver(src, Config{Shards: 4})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, err := r.Resolve(ctx, "u-1", false)
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			r.Invalidate("u-1")
		}
	}()
	wg.Wait()
}
