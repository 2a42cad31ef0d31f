package backends

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/AnumHasan/django/internal/auth"
)

func newTestCache(t *testing.T, store Store) (*PermissionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewPermissionCache(NewModelBackend(store), client, time.Hour), mr
}

func TestPermissionCacheAvoidsRepeatStoreReads(t *testing.T) {
	store := newMemStore()
	u := store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	store.direct[1] = []string{"catalog.add_product"}
	cache, _ := newTestCache(t, store)
	ctx := context.Background()

	first, err := cache.AllPermissions(ctx, u, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"catalog.add_product"}, first.Sorted())
	readsAfterFirst := store.reads

	second, err := cache.AllPermissions(ctx, u, nil)
	require.NoError(t, err)
	require.Equal(t, first.Sorted(), second.Sorted())
	require.Equal(t, readsAfterFirst, store.reads, "second lookup must come from the cache")
}

func TestPermissionCacheFlushInvalidates(t *testing.T) {
	store := newMemStore()
	u := store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	store.direct[1] = []string{"catalog.add_product"}
	cache, _ := newTestCache(t, store)
	ctx := context.Background()

	ok, err := cache.HasPerm(ctx, u, "catalog.add_product", nil)
	require.NoError(t, err)
	require.True(t, ok)

	// A revoked grant stays visible until the cache entry is flushed.
	store.direct[1] = nil
	ok, err = cache.HasPerm(ctx, u, "catalog.add_product", nil)
	require.NoError(t, err)
	require.True(t, ok, "stale entry answers until flushed")

	require.NoError(t, cache.Flush(ctx, 1))
	ok, err = cache.HasPerm(ctx, u, "catalog.add_product", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionCacheFlushAll(t *testing.T) {
	store := newMemStore()
	frida := store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	diego := store.addUser(t, auth.User{ID: 2, Username: "diego", IsActive: true}, "")
	store.viaGroups[1] = []string{"billing.view_invoice"}
	store.viaGroups[2] = []string{"billing.view_invoice"}
	cache, mr := newTestCache(t, store)
	ctx := context.Background()

	_, err := cache.GroupPermissions(ctx, frida, nil)
	require.NoError(t, err)
	_, err = cache.GroupPermissions(ctx, diego, nil)
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	require.NoError(t, cache.FlushAll(ctx))
	require.Empty(t, mr.Keys())
}

func TestPermissionCacheFallsThroughWhenRedisDown(t *testing.T) {
	store := newMemStore()
	u := store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	store.direct[1] = []string{"catalog.add_product"}
	cache, mr := newTestCache(t, store)
	mr.Close()

	set, err := cache.AllPermissions(context.Background(), u, nil)
	require.NoError(t, err, "a failing cache must not fail the check")
	require.Equal(t, []string{"catalog.add_product"}, set.Sorted())
}

func TestPermissionCacheSkipsAnonymousAndObjects(t *testing.T) {
	store := newMemStore()
	u := store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	store.direct[1] = []string{"catalog.add_product"}
	cache, mr := newTestCache(t, store)
	ctx := context.Background()

	set, err := cache.AllPermissions(ctx, auth.AnonymousUser{}, nil)
	require.NoError(t, err)
	require.Empty(t, set)

	set, err = cache.AllPermissions(ctx, u, struct{ ID int64 }{ID: 9})
	require.NoError(t, err)
	require.Empty(t, set)

	require.Empty(t, mr.Keys(), "anonymous and object scoped lookups are never cached")
}
