package auth

import "errors"

var (
	// ErrPermissionDenied is raised by a backend to short-circuit permission
	// checking: the remainder of the chain is skipped and the check fails.
	// It is consumed during resolution and never surfaces to callers.
	ErrPermissionDenied = errors.New("auth: permission denied")

	// ErrInvalidCredentials indicates that no configured backend could
	// authenticate the supplied credentials.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidPermission indicates a permission string that is not in the
	// "app_label.codename" form.
	ErrInvalidPermission = errors.New("auth: permission must be in the form app_label.codename")

	// ErrAmbiguousBackend indicates that multiple authentication backends are
	// configured and the caller must name one explicitly.
	ErrAmbiguousBackend = errors.New("auth: multiple authentication backends configured, an explicit backend is required")

	// ErrNoDatabaseRepresentation indicates a write operation on an anonymous
	// principal, which has no backing store.
	ErrNoDatabaseRepresentation = errors.New("auth: anonymous user has no database representation")
)
