package auth

import (
	"context"
	"errors"
)

// permScope selects which accessor a permission enumeration consults.
type permScope int

const (
	scopeUser permScope = iota
	scopeGroup
	scopeAll
)

// permissionsFromBackends unions the permission sets reported by every
// backend implementing the requested scope's lister. Set union makes the
// result independent of backend order.
func permissionsFromBackends(ctx context.Context, backends []Backend, p Principal, obj any, scope permScope) (PermissionSet, error) {
	perms := make(PermissionSet)
	for _, b := range backends {
		var (
			set PermissionSet
			err error
		)
		switch scope {
		case scopeUser:
			lister, ok := b.(UserPermissionLister)
			if !ok {
				continue
			}
			set, err = lister.UserPermissions(ctx, p, obj)
		case scopeGroup:
			lister, ok := b.(GroupPermissionLister)
			if !ok {
				continue
			}
			set, err = lister.GroupPermissions(ctx, p, obj)
		case scopeAll:
			lister, ok := b.(AllPermissionLister)
			if !ok {
				continue
			}
			set, err = lister.AllPermissions(ctx, p, obj)
		}
		if err != nil {
			return nil, err
		}
		perms.Merge(set)
	}
	return perms, nil
}

// hasPermFromBackends asks each backend in configured order. The first true
// wins; a backend returning ErrPermissionDenied short-circuits the chain and
// the check fails without consulting later backends. Backends without the
// capability are skipped.
func hasPermFromBackends(ctx context.Context, backends []Backend, p Principal, perm string, obj any) (bool, error) {
	for _, b := range backends {
		checker, ok := b.(PermissionChecker)
		if !ok {
			continue
		}
		granted, err := checker.HasPerm(ctx, p, perm, obj)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return false, nil
			}
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// hasModulePermsFromBackends mirrors hasPermFromBackends for app-level
// checks.
func hasModulePermsFromBackends(ctx context.Context, backends []Backend, p Principal, appLabel string) (bool, error) {
	for _, b := range backends {
		checker, ok := b.(ModulePermissionChecker)
		if !ok {
			continue
		}
		granted, err := checker.HasModulePerms(ctx, p, appLabel)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return false, nil
			}
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// Authenticate tries the supplied credentials against each backend in
// configured order and returns the first user a backend vouches for. A
// backend returning ErrPermissionDenied stops the chain and authentication
// fails. When every backend passes, ErrInvalidCredentials is returned.
func Authenticate(ctx context.Context, backends []Backend, creds Credentials) (*User, error) {
	for _, b := range backends {
		user, err := b.Authenticate(ctx, creds)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, ErrInvalidCredentials
}
