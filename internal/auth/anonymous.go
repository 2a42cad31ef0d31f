package auth

import "context"

// AnonymousUser is the principal for requests that carry no authenticated
// user. It has no database representation: every flag is false, every ID is
// zero and every mutation fails. The zero value is ready to use and all
// values compare equal.
type AnonymousUser struct{}

// GetID returns zero; anonymous users have no database row.
func (AnonymousUser) GetID() int64 { return 0 }

// GetUsername returns the empty string.
func (AnonymousUser) GetUsername() string { return "" }

// IsAuthenticated always reports false.
func (AnonymousUser) IsAuthenticated() bool { return false }

// IsAnonymous always reports true.
func (AnonymousUser) IsAnonymous() bool { return true }

func (AnonymousUser) String() string { return "AnonymousUser" }

// SetPassword fails: there is no row to store a hash on.
func (AnonymousUser) SetPassword(string) error { return ErrNoDatabaseRepresentation }

// CheckPassword fails: there is no stored hash to compare against.
func (AnonymousUser) CheckPassword(string) (bool, error) {
	return false, ErrNoDatabaseRepresentation
}

// Save fails: anonymous users cannot be persisted.
func (AnonymousUser) Save(context.Context) error { return ErrNoDatabaseRepresentation }

// Delete fails: anonymous users cannot be deleted.
func (AnonymousUser) Delete(context.Context) error { return ErrNoDatabaseRepresentation }

// HasPerm consults the backend chain. Backends are free to grant permissions
// to anonymous principals, though the default model backend never does.
func (a AnonymousUser) HasPerm(ctx context.Context, backends []Backend, perm string, obj any) (bool, error) {
	return hasPermFromBackends(ctx, backends, a, perm, obj)
}

// HasPerms reports whether the anonymous user holds every permission in
// perms. An empty list is vacuously true.
func (a AnonymousUser) HasPerms(ctx context.Context, backends []Backend, perms []string, obj any) (bool, error) {
	for _, perm := range perms {
		granted, err := a.HasPerm(ctx, backends, perm, obj)
		if err != nil || !granted {
			return false, err
		}
	}
	return true, nil
}

// HasModulePerms consults the backend chain.
func (a AnonymousUser) HasModulePerms(ctx context.Context, backends []Backend, appLabel string) (bool, error) {
	return hasModulePermsFromBackends(ctx, backends, a, appLabel)
}

// GetUserPermissions consults the backend chain.
func (a AnonymousUser) GetUserPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error) {
	return permissionsFromBackends(ctx, backends, a, obj, scopeUser)
}

// GetGroupPermissions returns a fresh empty set without consulting the
// chain: anonymous principals have no group memberships anywhere.
func (AnonymousUser) GetGroupPermissions(context.Context, []Backend, any) (PermissionSet, error) {
	return NewPermissionSet(), nil
}

// GetAllPermissions consults the backend chain.
func (a AnonymousUser) GetAllPermissions(ctx context.Context, backends []Backend, obj any) (PermissionSet, error) {
	return permissionsFromBackends(ctx, backends, a, obj, scopeAll)
}

var _ Principal = AnonymousUser{}
