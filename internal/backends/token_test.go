package backends

import (
	"context"
	"testing"
	"time"

	"github.com/AnumHasan/django/internal/auth"
)

func TestTokenBackendRoundTrip(t *testing.T) {
	store := newMemStore()
	store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	backend := NewTokenBackend(store, "signing-secret", "authsvc")

	token, err := backend.IssueToken(&auth.User{Username: "frida"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	user, err := backend.Authenticate(context.Background(), auth.Credentials{Token: token})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user == nil || user.ID != 1 {
		t.Fatalf("expected user 1, got %+v", user)
	}
}

func TestTokenBackendRejections(t *testing.T) {
	store := newMemStore()
	store.addUser(t, auth.User{ID: 1, Username: "frida", IsActive: true}, "")
	store.addUser(t, auth.User{ID: 2, Username: "retired", IsActive: false}, "")
	backend := NewTokenBackend(store, "signing-secret", "authsvc")

	expired, err := backend.IssueToken(&auth.User{Username: "frida"}, -time.Minute)
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	valid, err := backend.IssueToken(&auth.User{Username: "frida"}, time.Hour)
	if err != nil {
		t.Fatalf("issue valid: %v", err)
	}
	foreign, err := NewTokenBackend(store, "signing-secret", "othersvc").IssueToken(&auth.User{Username: "frida"}, time.Hour)
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	unknown, err := backend.IssueToken(&auth.User{Username: "ghost"}, time.Hour)
	if err != nil {
		t.Fatalf("issue unknown: %v", err)
	}
	inactive, err := backend.IssueToken(&auth.User{Username: "retired"}, time.Hour)
	if err != nil {
		t.Fatalf("issue inactive: %v", err)
	}

	cases := map[string]string{
		"empty":        "",
		"expired":      expired,
		"tampered":     valid + "x",
		"wrong issuer": foreign,
		"unknown user": unknown,
		"inactive":     inactive,
	}
	for name, token := range cases {
		user, err := backend.Authenticate(context.Background(), auth.Credentials{Token: token})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if user != nil {
			t.Fatalf("%s: expected no match, got %v", name, user.Username)
		}
	}
}

func TestTokenBackendHasNoPermissionCapabilities(t *testing.T) {
	var backend auth.Backend = NewTokenBackend(newMemStore(), "signing-secret", "authsvc")
	if _, ok := backend.(auth.PermissionChecker); ok {
		t.Fatalf("token backend must not answer permission checks")
	}
	if _, ok := backend.(auth.AllPermissionLister); ok {
		t.Fatalf("token backend must not enumerate permissions")
	}
	if _, ok := backend.(auth.PermissionFinder); ok {
		t.Fatalf("token backend must not run reverse lookups")
	}
}
