package auth

import "context"

// Credentials carries whatever proof of identity a caller collected. A
// backend acts on the fields it understands and reports no match for shapes
// it does not handle.
type Credentials struct {
	Username string
	Password string
	// Token is a bearer token for token-based backends.
	Token string
}

// Backend is a pluggable authenticator. The backend chain is an ordered
// []Backend passed explicitly to every entry point; nothing in this package
// reads chain configuration from global state.
//
// Beyond Authenticate, a backend may implement any of the optional capability
// interfaces below. Capabilities are probed by type assertion at call time
// and a missing capability is a no-op, never an error.
type Backend interface {
	// Authenticate verifies the supplied credentials and returns the matching
	// user. It returns (nil, nil) when the backend cannot handle the
	// credential shape or finds no match, letting the chain move on. An
	// ErrPermissionDenied return stops the chain outright.
	Authenticate(ctx context.Context, creds Credentials) (*User, error)
}

// PermissionChecker is implemented by backends that can answer single
// permission checks.
type PermissionChecker interface {
	// HasPerm reports whether p holds perm, optionally scoped to obj.
	// Returning ErrPermissionDenied stops the chain and fails the check.
	HasPerm(ctx context.Context, p Principal, perm string, obj any) (bool, error)
}

// ModulePermissionChecker is implemented by backends that can answer
// app-level permission checks.
type ModulePermissionChecker interface {
	// HasModulePerms reports whether p holds any permission in the app
	// identified by appLabel. Returning ErrPermissionDenied stops the chain
	// and fails the check.
	HasModulePerms(ctx context.Context, p Principal, appLabel string) (bool, error)
}

// UserPermissionLister is implemented by backends that can enumerate the
// permissions granted to a principal directly.
type UserPermissionLister interface {
	UserPermissions(ctx context.Context, p Principal, obj any) (PermissionSet, error)
}

// GroupPermissionLister is implemented by backends that can enumerate the
// permissions a principal holds through group membership.
type GroupPermissionLister interface {
	GroupPermissions(ctx context.Context, p Principal, obj any) (PermissionSet, error)
}

// AllPermissionLister is implemented by backends that can enumerate every
// permission a principal holds.
type AllPermissionLister interface {
	AllPermissions(ctx context.Context, p Principal, obj any) (PermissionSet, error)
}

// PermissionFinder is implemented by backends that can run the reverse
// lookup: which users hold a given permission.
type PermissionFinder interface {
	WithPerm(ctx context.Context, perm string, opts WithPermOptions) ([]User, error)
}
