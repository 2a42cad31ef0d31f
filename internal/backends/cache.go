package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnumHasan/django/internal/auth"
)

// PermissionCache decorates a ModelBackend with a Redis cache over the per
// user permission sets. Entries are keyed by user ID and scope; Flush and
// FlushAll invalidate them when grants or memberships change. A failing
// Redis never fails a permission check, the lookup falls through to the
// store.
type PermissionCache struct {
	backend *ModelBackend
	client  *redis.Client
	ttl     time.Duration
}

// NewPermissionCache wraps backend with a cache using the given TTL.
func NewPermissionCache(backend *ModelBackend, client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{backend: backend, client: client, ttl: ttl}
}

const cacheKeyPrefix = "authperm"

func cacheKey(scope string, userID int64) string {
	return fmt.Sprintf("%s:%s:%d", cacheKeyPrefix, scope, userID)
}

// Authenticate delegates to the wrapped backend; credentials are never
// cached.
func (c *PermissionCache) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	return c.backend.Authenticate(ctx, creds)
}

// UserPermissions returns the directly granted permissions, cached.
func (c *PermissionCache) UserPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error) {
	return c.cached(ctx, "user", p, obj, c.backend.UserPermissions)
}

// GroupPermissions returns the group granted permissions, cached.
func (c *PermissionCache) GroupPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error) {
	return c.cached(ctx, "group", p, obj, c.backend.GroupPermissions)
}

// AllPermissions returns every held permission, cached.
func (c *PermissionCache) AllPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error) {
	return c.cached(ctx, "all", p, obj, c.backend.AllPermissions)
}

func (c *PermissionCache) cached(ctx context.Context, scope string, p auth.Principal, obj any, load func(context.Context, auth.Principal, any) (auth.PermissionSet, error)) (auth.PermissionSet, error) {
	user, ok := p.(*auth.User)
	if !ok || obj != nil {
		return load(ctx, p, obj)
	}
	key := cacheKey(scope, user.ID)
	if payload, err := c.client.Get(ctx, key).Result(); err == nil {
		var perms []string
		if err := json.Unmarshal([]byte(payload), &perms); err == nil {
			return auth.NewPermissionSet(perms...), nil
		}
	}
	set, err := load(ctx, p, obj)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(set.Sorted()); err == nil {
		c.client.Set(ctx, key, payload, c.ttl)
	}
	return set, nil
}

// HasPerm answers from the cached permission set.
func (c *PermissionCache) HasPerm(ctx context.Context, p auth.Principal, perm string, obj any) (bool, error) {
	user, ok := p.(*auth.User)
	if !ok || !user.IsActive {
		return false, nil
	}
	set, err := c.AllPermissions(ctx, p, obj)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// HasModulePerms answers from the cached permission set.
func (c *PermissionCache) HasModulePerms(ctx context.Context, p auth.Principal, appLabel string) (bool, error) {
	user, ok := p.(*auth.User)
	if !ok || !user.IsActive {
		return false, nil
	}
	set, err := c.AllPermissions(ctx, p, nil)
	if err != nil {
		return false, err
	}
	for perm := range set {
		if label, _, found := strings.Cut(perm, "."); found && label == appLabel {
			return true, nil
		}
	}
	return false, nil
}

// WithPerm delegates to the wrapped backend; reverse lookups are not cached.
func (c *PermissionCache) WithPerm(ctx context.Context, perm string, opts auth.WithPermOptions) ([]auth.User, error) {
	return c.backend.WithPerm(ctx, perm, opts)
}

// Flush drops the cached sets for the given users.
func (c *PermissionCache) Flush(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs)*3)
	for _, id := range userIDs {
		keys = append(keys, cacheKey("user", id), cacheKey("group", id), cacheKey("all", id))
	}
	return c.client.Del(ctx, keys...).Err()
}

// FlushAll drops every cached permission set. Called when a change fans out
// to an unknown set of users, such as regranting a group.
func (c *PermissionCache) FlushAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

var (
	_ auth.Backend                 = (*PermissionCache)(nil)
	_ auth.PermissionChecker       = (*PermissionCache)(nil)
	_ auth.ModulePermissionChecker = (*PermissionCache)(nil)
	_ auth.UserPermissionLister    = (*PermissionCache)(nil)
	_ auth.GroupPermissionLister   = (*PermissionCache)(nil)
	_ auth.AllPermissionLister     = (*PermissionCache)(nil)
	_ auth.PermissionFinder        = (*PermissionCache)(nil)
)
