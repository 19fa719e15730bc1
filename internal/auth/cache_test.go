package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testIdentity(name string) Identity {
	return Identity{
		User:        User{ID: uuid.New(), Name: name, Email: name + "@example.test", Username: name},
		Permissions: []Permission{},
		Roles:       []Role{},
	}
}

func TestCacheSetGetOverwrite(t *testing.T) {
	c := NewCache(time.Minute)
	id := uuid.New()
	exp := time.Now().Add(time.Minute)

	c.Set(id, exp, testIdentity("first"))
	c.Set(id, exp, testIdentity("second"))

	identity, gotExp, ok := c.Get(id)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if identity.User.Name != "second" {
		t.Fatalf("expected overwrite semantics, got %q", identity.User.Name)
	}
	if !gotExp.Equal(exp) {
		t.Fatalf("unexpected expiry: %v", gotExp)
	}
	if c.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", c.Len())
	}
}

func TestCacheGetDoesNotTimeFilter(t *testing.T) {
	c := NewCache(time.Minute)
	id := uuid.New()
	c.Set(id, time.Now().Add(-time.Second), testIdentity("stale"))

	// Expired-but-present entries stay visible until a sweep runs.
	if _, _, ok := c.Get(id); !ok {
		t.Fatal("expected expired-but-present entry before sweep")
	}
	c.Sweep()
	if _, _, ok := c.Get(id); ok {
		t.Fatal("expected eviction after sweep")
	}
}

func TestCacheSweepIdempotent(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Now()
	c.Set(uuid.New(), now.Add(-time.Minute), testIdentity("expired"))
	c.Set(uuid.New(), now.Add(time.Hour), testIdentity("live"))

	c.Sweep()
	after := c.Len()
	c.Sweep()
	if c.Len() != after {
		t.Fatalf("second sweep removed entries: %d != %d", c.Len(), after)
	}
	if after != 1 {
		t.Fatalf("expected 1 live entry, got %d", after)
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewCache(time.Minute)
	id := uuid.New()
	c.Set(id, time.Now().Add(time.Hour), testIdentity("gone"))
	c.Remove(id)
	if _, _, ok := c.Get(id); ok {
		t.Fatal("expected entry removed")
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	if ttl := NewCache(0).TTL(); ttl != DefaultCacheTTL {
		t.Fatalf("expected default ttl, got %v", ttl)
	}
}
