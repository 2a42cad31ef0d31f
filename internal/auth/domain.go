// Package auth implements the user, group and permission model together with
// the pluggable backend chain that decides whether a principal holds a
// permission. Persistence and concrete backends live in sibling packages;
// everything here is store-agnostic.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ContentType names the model a permission applies to, identified by the
// (app label, model) pair.
type ContentType struct {
	ID       int64
	AppLabel string
	Model    string
}

func (ct ContentType) String() string {
	return ct.AppLabel + "." + ct.Model
}

// Permission is an atomic capability. Its identity is the (content type,
// codename) pair; once created it is immutable reference data.
type Permission struct {
	ID          int64
	Name        string
	ContentType ContentType
	Codename    string
}

func (p Permission) String() string {
	return fmt.Sprintf("%s | %s", p.ContentType, p.Name)
}

// PermString returns the namespaced permission string "app_label.codename"
// used throughout permission checks.
func (p Permission) PermString() string {
	return p.ContentType.AppLabel + "." + p.Codename
}

// SplitPermission splits a namespaced permission string into app label and
// codename. Strings without exactly one separator fail with
// ErrInvalidPermission.
func SplitPermission(perm string) (appLabel, codename string, err error) {
	parts := strings.Split(perm, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (got %q)", ErrInvalidPermission, perm)
	}
	return parts[0], parts[1], nil
}

// PermissionSet is an unordered collection of permission strings.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given permission strings.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	set.Add(perms...)
	return set
}

// Has reports whether perm is in the set.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Add inserts the given permission strings.
func (s PermissionSet) Add(perms ...string) {
	for _, p := range perms {
		s[p] = struct{}{}
	}
}

// Merge inserts every member of other.
func (s PermissionSet) Merge(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Group categorizes users to apply permissions to them collectively. A user
// in a group holds every permission granted to that group. Identity is the
// unique name.
type Group struct {
	ID   int64
	Name string
}

func (g Group) String() string {
	return g.Name
}

// WithPermOptions controls a UsersWithPerm lookup.
type WithPermOptions struct {
	// IsActive filters users by their active flag. Nil applies no filter.
	IsActive *bool
	// IncludeSuperusers adds active superusers to the result even without an
	// explicit grant.
	IncludeSuperusers bool
	// Backend names the backend performing the lookup. Required when more
	// than one backend is configured.
	Backend Backend
	// Obj restricts the lookup to grants on a specific object.
	Obj any
}

// UsersWithPerm returns the users effectively granted perm, directly or
// through any group. A nil opts filters to active users and includes
// superusers. When opts does not name a backend the single configured one is
// selected implicitly; with several configured the choice is ambiguous and
// the lookup fails with ErrAmbiguousBackend. A selected backend without the
// lookup capability yields an empty result.
func UsersWithPerm(ctx context.Context, backends []Backend, perm string, opts *WithPermOptions) ([]User, error) {
	if opts == nil {
		active := true
		opts = &WithPermOptions{IsActive: &active, IncludeSuperusers: true}
	}
	selected := opts.Backend
	if selected == nil {
		if len(backends) != 1 {
			return nil, ErrAmbiguousBackend
		}
		selected = backends[0]
	}
	finder, ok := selected.(PermissionFinder)
	if !ok {
		return []User{}, nil
	}
	return finder.WithPerm(ctx, perm, *opts)
}
