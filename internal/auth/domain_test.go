package auth

import (
	"context"
	"errors"
	"testing"
)

func TestSplitPermission(t *testing.T) {
	appLabel, codename, err := SplitPermission("catalog.view_product")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if appLabel != "catalog" || codename != "view_product" {
		t.Fatalf("expected catalog/view_product, got %s/%s", appLabel, codename)
	}

	for _, perm := range []string{"", "catalog", ".view_product", "catalog.", "a.b.c"} {
		if _, _, err := SplitPermission(perm); !errors.Is(err, ErrInvalidPermission) {
			t.Fatalf("expected ErrInvalidPermission for %q, got %v", perm, err)
		}
	}
}

func TestPermissionStrings(t *testing.T) {
	perm := Permission{
		Name:        "Can view product",
		ContentType: ContentType{AppLabel: "catalog", Model: "product"},
		Codename:    "view_product",
	}
	if got := perm.PermString(); got != "catalog.view_product" {
		t.Fatalf("perm string: %s", got)
	}
	if got := perm.String(); got != "catalog.product | Can view product" {
		t.Fatalf("string: %s", got)
	}
}

func TestPermissionSetOperations(t *testing.T) {
	set := NewPermissionSet("b.y", "a.x")
	set.Add("c.z", "a.x")
	other := NewPermissionSet("d.w")
	set.Merge(other)

	if !set.Has("a.x") || set.Has("e.v") {
		t.Fatalf("membership wrong: %v", set.Sorted())
	}
	sorted := set.Sorted()
	want := []string{"a.x", "b.y", "c.z", "d.w"}
	if len(sorted) != len(want) {
		t.Fatalf("expected %v, got %v", want, sorted)
	}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sorted)
		}
	}
}

type finderBackend struct {
	users    []User
	lastPerm string
	lastOpts WithPermOptions
	calls    int
}

func (b *finderBackend) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	return nil, nil
}

func (b *finderBackend) WithPerm(ctx context.Context, perm string, opts WithPermOptions) ([]User, error) {
	b.calls++
	b.lastPerm = perm
	b.lastOpts = opts
	return b.users, nil
}

func TestUsersWithPermSingleBackendImplicit(t *testing.T) {
	finder := &finderBackend{users: []User{{ID: 1, Username: "frida"}}}

	users, err := UsersWithPerm(context.Background(), []Backend{finder}, "catalog.view_product", nil)
	if err != nil {
		t.Fatalf("with perm: %v", err)
	}
	if len(users) != 1 || users[0].Username != "frida" {
		t.Fatalf("unexpected users %v", users)
	}
	if finder.lastPerm != "catalog.view_product" {
		t.Fatalf("expected perm forwarded, got %q", finder.lastPerm)
	}
	if finder.lastOpts.IsActive == nil || !*finder.lastOpts.IsActive {
		t.Fatalf("expected default active-only filter")
	}
	if !finder.lastOpts.IncludeSuperusers {
		t.Fatalf("expected superusers included by default")
	}
}

func TestUsersWithPermAmbiguousChain(t *testing.T) {
	a := &finderBackend{}
	b := &finderBackend{}

	if _, err := UsersWithPerm(context.Background(), []Backend{a, b}, "catalog.view_product", nil); !errors.Is(err, ErrAmbiguousBackend) {
		t.Fatalf("expected ErrAmbiguousBackend with two backends, got %v", err)
	}
	if _, err := UsersWithPerm(context.Background(), nil, "catalog.view_product", nil); !errors.Is(err, ErrAmbiguousBackend) {
		t.Fatalf("expected ErrAmbiguousBackend with no backends, got %v", err)
	}
}

func TestUsersWithPermExplicitBackend(t *testing.T) {
	preferred := &finderBackend{users: []User{{ID: 2, Username: "diego"}}}
	other := &finderBackend{}

	users, err := UsersWithPerm(context.Background(), []Backend{other, preferred}, "catalog.view_product", &WithPermOptions{Backend: preferred})
	if err != nil {
		t.Fatalf("with perm: %v", err)
	}
	if len(users) != 1 || users[0].ID != 2 {
		t.Fatalf("unexpected users %v", users)
	}
	if other.calls != 0 {
		t.Fatalf("expected only the named backend consulted")
	}
}

func TestUsersWithPermIncapableBackend(t *testing.T) {
	// A single configured backend is still auto-selected when it cannot run
	// the lookup; the result is empty rather than an error.
	users, err := UsersWithPerm(context.Background(), []Backend{&authOnlyBackend{}}, "catalog.view_product", nil)
	if err != nil {
		t.Fatalf("with perm: %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Fatalf("expected empty result, got %v", users)
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername("Ｆｒｉｄａ"); got != "Frida" {
		t.Fatalf("expected fullwidth letters folded, got %q", got)
	}
	if got := NormalizeUsername("ﬁsh"); got != "fish" {
		t.Fatalf("expected ligature decomposed, got %q", got)
	}
	if got := NormalizeUsername("frida"); got != "frida" {
		t.Fatalf("expected plain ascii untouched, got %q", got)
	}
}

func TestValidUsername(t *testing.T) {
	valid := []string{"frida", "maría", "user.name+tag@host-1_x", "日本語"}
	for _, name := range valid {
		if !ValidUsername(name) {
			t.Fatalf("expected %q valid", name)
		}
	}

	tooLong := make([]byte, 0, MaxUsernameLength+1)
	for i := 0; i <= MaxUsernameLength; i++ {
		tooLong = append(tooLong, 'a')
	}
	invalid := []string{"", "has space", "semi;colon", string(tooLong)}
	for _, name := range invalid {
		if ValidUsername(name) {
			t.Fatalf("expected %q invalid", name)
		}
	}
}
