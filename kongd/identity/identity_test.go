package identity

import "testing"

func TestResolveBindsNewPrincipal(t *testing.T) {
	r := NewRegistry(false)
	userID, err := r.Resolve("principal-1", "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if userID != "alice" {
		t.Fatalf("got %s, want alice", userID)
	}
}

func TestResolveSameBindingIsIdempotent(t *testing.T) {
	r := NewRegistry(false)
	if _, err := r.Resolve("principal-1", "alice"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	userID, err := r.Resolve("principal-1", "alice")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if userID != "alice" {
		t.Fatalf("got %s, want alice", userID)
	}
}

func TestResolveRejectsCollisionByDefault(t *testing.T) {
	r := NewRegistry(false)
	if _, err := r.Resolve("principal-1", "alice"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if _, err := r.Resolve("principal-1", "mallory"); err == nil {
		t.Fatal("expected ErrAmbiguousPrincipal for a colliding principal")
	}
}

func TestResolveRewritesCollisionWhenConfigured(t *testing.T) {
	r := NewRegistry(true)
	if _, err := r.Resolve("principal-1", "alice"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	userID, err := r.Resolve("principal-1", "mallory")
	if err != nil {
		t.Fatalf("Resolve with rewrite enabled: %v", err)
	}
	if userID != "principal-1_mallory" {
		t.Fatalf("got %s, want synthesized fallback id", userID)
	}
}
