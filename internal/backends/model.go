package backends

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AnumHasan/django/internal/auth"
)

// ModelBackend authenticates against the user store and resolves permissions
// from the persisted group and permission relations. It implements every
// optional backend capability.
//
// Inactive and anonymous principals hold no permissions here, and object
// scoped queries return empty sets: the relational schema stores no per
// object grants.
type ModelBackend struct {
	store Store
}

// NewModelBackend constructs a ModelBackend over the given store.
func NewModelBackend(store Store) *ModelBackend {
	return &ModelBackend{store: store}
}

var (
	dummyHashOnce sync.Once
	dummyHashVal  []byte
)

// dummyHash returns a throwaway bcrypt digest compared against when the
// username is unknown, so unknown usernames and wrong passwords cost the
// same.
func dummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHashVal, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	})
	return dummyHashVal
}

// Authenticate verifies a username/password pair against the store. Unknown
// usernames, wrong passwords and inactive users all report no match rather
// than an error, leaving the decision to the rest of the chain.
func (b *ModelBackend) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, nil
	}
	user, err := b.store.UserByUsername(ctx, auth.NormalizeUsername(creds.Username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(creds.Password))
			return nil, nil
		}
		return nil, err
	}
	ok, err := user.CheckPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	if !ok || !b.userCanAuthenticate(user) {
		return nil, nil
	}
	return user, nil
}

func (b *ModelBackend) userCanAuthenticate(u *auth.User) bool {
	return u.IsActive
}

// UserPermissions returns the permissions granted to the principal directly.
func (b *ModelBackend) UserPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error) {
	return b.permissions(ctx, p, obj, b.store.UserPermissionStrings)
}

// GroupPermissions returns the permissions the principal holds through
// group membership.
func (b *ModelBackend) GroupPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error) {
	return b.permissions(ctx, p, obj, b.store.GroupPermissionStrings)
}

// AllPermissions returns the union of direct and group granted permissions.
func (b *ModelBackend) AllPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error) {
	set, err := b.UserPermissions(ctx, p, obj)
	if err != nil {
		return nil, err
	}
	groupSet, err := b.GroupPermissions(ctx, p, obj)
	if err != nil {
		return nil, err
	}
	set.Merge(groupSet)
	return set, nil
}

func (b *ModelBackend) permissions(ctx context.Context, p auth.Principal, obj any, query func(context.Context, int64) ([]string, error)) (auth.PermissionSet, error) {
	user, ok := p.(*auth.User)
	if !ok || !user.IsActive || obj != nil {
		return auth.NewPermissionSet(), nil
	}
	if user.IsSuperuser {
		perms, err := b.store.AllPermissionStrings(ctx)
		if err != nil {
			return nil, err
		}
		return auth.NewPermissionSet(perms...), nil
	}
	perms, err := query(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return auth.NewPermissionSet(perms...), nil
}

// HasPerm reports whether an active principal holds perm.
func (b *ModelBackend) HasPerm(ctx context.Context, p auth.Principal, perm string, obj any) (bool, error) {
	user, ok := p.(*auth.User)
	if !ok || !user.IsActive {
		return false, nil
	}
	set, err := b.AllPermissions(ctx, p, obj)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// HasModulePerms reports whether an active principal holds any permission in
// the given app.
func (b *ModelBackend) HasModulePerms(ctx context.Context, p auth.Principal, appLabel string) (bool, error) {
	user, ok := p.(*auth.User)
	if !ok || !user.IsActive {
		return false, nil
	}
	set, err := b.AllPermissions(ctx, p, nil)
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

// WithPerm returns the users granted perm directly or through any group.
// Object scoped lookups return an empty result.
func (b *ModelBackend) WithPerm(ctx context.Context, perm string, opts auth.WithPermOptions) ([]auth.User, error) {
	appLabel, codename, err := auth.SplitPermission(perm)
	if err != nil {
		return nil, err
	}
	if opts.Obj != nil {
		return []auth.User{}, nil
	}
	return b.store.UsersWithPerm(ctx, WithPermFilter{
		AppLabel:          appLabel,
		Codename:          codename,
		IsActive:          opts.IsActive,
		IncludeSuperusers: opts.IncludeSuperusers,
	})
}

var (
	_ auth.Backend                 = (*ModelBackend)(nil)
	_ auth.PermissionChecker       = (*ModelBackend)(nil)
	_ auth.ModulePermissionChecker = (*ModelBackend)(nil)
	_ auth.UserPermissionLister    = (*ModelBackend)(nil)
	_ auth.GroupPermissionLister   = (*ModelBackend)(nil)
	_ auth.AllPermissionLister     = (*ModelBackend)(nil)
	_ auth.PermissionFinder        = (*ModelBackend)(nil)
)
