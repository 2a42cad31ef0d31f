package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Principal is an entity whose permissions can be evaluated: an authenticated
// User or the AnonymousUser. Both variants expose the same permission-query
// contract; they differ in backing store.
type Principal interface {
	// GetID returns the database ID, or zero for principals without a
	// database representation.
	GetID() int64
	// GetUsername returns the login name, or the empty string.
	GetUsername() string
	IsAuthenticated() bool
	IsAnonymous() bool

	// HasPerm reports whether the principal holds perm, optionally scoped to
	// obj, by querying the backend chain.
	HasPerm(ctx context.Context, backends []Backend, perm string, obj any) (bool, error)
	// HasPerms reports whether the principal holds every permission in perms.
	// An empty list is vacuously true.
	HasPerms(ctx context.Context, backends []Backend, perms []string, obj any) (bool, error)
	// HasModulePerms reports whether the principal holds any permission in
	// the app identified by appLabel.
	HasModulePerms(ctx context.Context, backends []Backend, appLabel string) (bool, error)
	// GetUserPermissions returns the permission strings granted directly.
	GetUserPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error)
	// GetGroupPermissions returns the permission strings granted through
	// group membership.
	GetGroupPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error)
	// GetAllPermissions returns every permission string the principal holds.
	GetAllPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error)
}

// User is an authenticated account. Group memberships and directly assigned
// permissions are persisted as relations and reached through the backend
// chain, not carried on the struct.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Email     string
	// Password holds the encoded hash, never the raw password.
	Password    string
	IsStaff     bool
	IsActive    bool
	IsSuperuser bool
	// LastLogin is the zero time until the user first logs in.
	LastLogin  time.Time
	DateJoined time.Time
}

// GetID returns the database ID.
func (u *User) GetID() int64 { return u.ID }

// GetUsername returns the login name.
func (u *User) GetUsername() string { return u.Username }

// IsAuthenticated always reports true for a User. This distinguishes users
// from anonymous principals without a database round trip.
func (u *User) IsAuthenticated() bool { return true }

// IsAnonymous always reports false for a User.
func (u *User) IsAnonymous() bool { return false }

// GetFullName returns the first and last name separated by a space.
func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// GetShortName returns the first name.
func (u *User) GetShortName() string { return u.FirstName }

func (u *User) String() string { return u.Username }

// SetPassword hashes raw with bcrypt and stores the encoded hash on the
// struct. Persisting the change is the caller's responsibility.
func (u *User) SetPassword(raw string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// CheckPassword reports whether raw matches the stored hash. A malformed
// stored hash is reported as an error, not a mismatch.
func (u *User) CheckPassword(raw string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(raw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// HasPerm reports whether the user holds perm. Active superusers hold every
// permission without the backend chain being consulted.
func (u *User) HasPerm(ctx context.Context, backends []Backend, perm string, obj any) (bool, error) {
	if u.IsActive && u.IsSuperuser {
		return true, nil
	}
	return hasPermFromBackends(ctx, backends, u, perm, obj)
}

// HasPerms reports whether the user holds every permission in perms.
func (u *User) HasPerms(ctx context.Context, backends []Backend, perms []string, obj any) (bool, error) {
	for _, perm := range perms {
		granted, err := u.HasPerm(ctx, backends, perm, obj)
		if err != nil || !granted {
			return false, err
		}
	}
	return true, nil
}

// HasModulePerms reports whether the user holds any permission in the given
// app. The superuser bypass applies as in HasPerm.
func (u *User) HasModulePerms(ctx context.Context, backends []Backend, appLabel string) (bool, error) {
	if u.IsActive && u.IsSuperuser {
		return true, nil
	}
	return hasModulePermsFromBackends(ctx, backends, u, appLabel)
}

// GetUserPermissions returns the permissions assigned to the user directly.
func (u *User) GetUserPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error) {
	return permissionsFromBackends(ctx, backends, u, obj, scopeUser)
}

// GetGroupPermissions returns the permissions the user holds through groups.
func (u *User) GetGroupPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error) {
	return permissionsFromBackends(ctx, backends, u, obj, scopeGroup)
}

// GetAllPermissions returns every permission the user holds.
func (u *User) GetAllPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error) {
	return permissionsFromBackends(ctx, backends, u, obj, scopeAll)
}

var _ Principal = (*User)(nil)
