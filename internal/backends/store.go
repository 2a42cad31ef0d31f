// Package backends provides the built-in authentication backends: the
// store-backed ModelBackend, a Redis caching decorator for it and a bearer
// token backend. All of them plug into the auth backend chain.
package backends

import (
	"context"
	"errors"

	"github.com/AnumHasan/django/internal/auth"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("backends: not found")

// WithPermFilter carries the filters of a reverse permission lookup down to
// the store.
type WithPermFilter struct {
	AppLabel string
	Codename string
	// IsActive filters by the active flag. Nil applies no filter.
	IsActive *bool
	// IncludeSuperusers adds active superusers regardless of explicit grants.
	IncludeSuperusers bool
}

// Store is the read-side persistence contract the built-in backends consume.
// Permission strings are always in the "app_label.codename" form.
type Store interface {
	UserByUsername(ctx context.Context, username string) (*auth.User, error)
	UserByID(ctx context.Context, id int64) (*auth.User, error)

	// PermissionByNaturalKey resolves a permission by its natural key
	// (codename, app label, model).
	PermissionByNaturalKey(ctx context.Context, codename, appLabel, model string) (auth.Permission, error)
	// GroupByName resolves a group by its unique name.
	GroupByName(ctx context.Context, name string) (auth.Group, error)

	// UserPermissionStrings returns the permissions granted to the user
	// directly.
	UserPermissionStrings(ctx context.Context, userID int64) ([]string, error)
	// GroupPermissionStrings returns the permissions the user holds through
	// group membership.
	GroupPermissionStrings(ctx context.Context, userID int64) ([]string, error)
	// AllPermissionStrings returns every permission in the store, the set an
	// active superuser effectively holds.
	AllPermissionStrings(ctx context.Context) ([]string, error)

	// UsersWithPerm returns the users granted a permission directly or
	// through any group, subject to the filter.
	UsersWithPerm(ctx context.Context, filter WithPermFilter) ([]auth.User, error)
}
