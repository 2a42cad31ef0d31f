package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/AnumHasan/django/internal/auth"
	"github.com/AnumHasan/django/internal/backends"
	_ "github.com/AnumHasan/django/testing"
)

// fixtureStore serves a small org fixture: one regular account with a direct
// and a group grant, plus one superuser.
type fixtureStore struct {
	users  map[int64]*auth.User
	direct map[int64][]string
	groups map[int64][]string
	reads  int
}

func newFixtureStore() *fixtureStore {
	return &fixtureStore{
		users: map[int64]*auth.User{
			1: {ID: 1, Username: "frida", IsActive: true},
			2: {ID: 2, Username: "root", IsActive: true, IsSuperuser: true},
		},
		direct: map[int64][]string{1: {"catalog.view_product"}},
		groups: map[int64][]string{1: {"catalog.change_product"}},
	}
}

func (s *fixtureStore) UserByUsername(_ context.Context, username string) (*auth.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, backends.ErrNotFound
}

func (s *fixtureStore) UserByID(_ context.Context, id int64) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, backends.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fixtureStore) PermissionByNaturalKey(context.Context, string, string, string) (auth.Permission, error) {
	return auth.Permission{}, backends.ErrNotFound
}

func (s *fixtureStore) GroupByName(context.Context, string) (auth.Group, error) {
	return auth.Group{}, backends.ErrNotFound
}

func (s *fixtureStore) UserPermissionStrings(_ context.Context, userID int64) ([]string, error) {
	s.reads++
	return s.direct[userID], nil
}

func (s *fixtureStore) GroupPermissionStrings(_ context.Context, userID int64) ([]string, error) {
	s.reads++
	return s.groups[userID], nil
}

func (s *fixtureStore) AllPermissionStrings(context.Context) ([]string, error) {
	s.reads++
	return []string{"catalog.view_product", "catalog.change_product", "catalog.delete_product"}, nil
}

func (s *fixtureStore) UsersWithPerm(context.Context, backends.WithPermFilter) ([]auth.User, error) {
	return nil, nil
}

func TestPermissionPipelineThroughCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFixtureStore()
	cache := backends.NewPermissionCache(backends.NewModelBackend(store), client, time.Minute)
	chain := []auth.Backend{cache}
	ctx := context.Background()

	frida, err := store.UserByID(ctx, 1)
	if err != nil {
		t.Fatalf("load fixture user: %v", err)
	}

	// Cold check loads from the store and fills the cache.
	granted, err := frida.HasPerm(ctx, chain, "catalog.change_product", nil)
	if err != nil {
		t.Fatalf("cold check: %v", err)
	}
	if !granted {
		t.Fatal("expected group grant to resolve")
	}
	readsAfterCold := store.reads
	if readsAfterCold == 0 {
		t.Fatal("cold check should have read the store")
	}

	// Warm checks answer from Redis without touching the store.
	granted, err = frida.HasPerm(ctx, chain, "catalog.view_product", nil)
	if err != nil {
		t.Fatalf("warm check: %v", err)
	}
	if !granted {
		t.Fatal("expected direct grant to resolve")
	}
	if store.reads != readsAfterCold {
		t.Fatalf("warm check hit the store: %d reads, want %d", store.reads, readsAfterCold)
	}

	// A permission nobody granted stays denied.
	granted, err = frida.HasPerm(ctx, chain, "catalog.delete_product", nil)
	if err != nil {
		t.Fatalf("denied check: %v", err)
	}
	if granted {
		t.Fatal("ungranted permission resolved to true")
	}

	// Superusers bypass the chain entirely.
	root, err := store.UserByID(ctx, 2)
	if err != nil {
		t.Fatalf("load fixture superuser: %v", err)
	}
	granted, err = root.HasPerm(ctx, chain, "catalog.delete_product", nil)
	if err != nil {
		t.Fatalf("superuser check: %v", err)
	}
	if !granted {
		t.Fatal("superuser bypass failed")
	}
	if store.reads != readsAfterCold {
		t.Fatalf("superuser check consulted a backend: %d reads, want %d", store.reads, readsAfterCold)
	}

	// Flushing the account forces the next check back to the store.
	if err := cache.Flush(ctx, frida.ID); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := frida.HasPerm(ctx, chain, "catalog.view_product", nil); err != nil {
		t.Fatalf("post-flush check: %v", err)
	}
	if store.reads == readsAfterCold {
		t.Fatal("post-flush check should have reloaded from the store")
	}
}
