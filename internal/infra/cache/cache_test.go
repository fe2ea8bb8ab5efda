package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/cache"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var _ port.Cache[[]domain.Agent] = (*cache.InMemory[[]domain.Agent])(nil)
var _ port.Cache[[]domain.Agent] = (*cache.Redis[[]domain.Agent])(nil)

func TestCache_SetAndGetRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New[[]domain.Agent](ctx, 5*time.Minute)

	c.Set("agents:roster", []domain.Agent{{ID: "a1", Name: "Ana", Active: true}})
	got, ok := c.Get("agents:roster")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if len(got) != 1 || got[0].Name != "Ana" {
		t.Errorf("unexpected roster %+v", got)
	}
}

func TestCache_GetMiss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New[string](ctx, 5*time.Minute)

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New[string](ctx, 50*time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New[int](ctx, 20*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := c.Len(); n != 0 {
		t.Errorf("expected sweep to empty the cache, %d entries left", n)
	}
}

func TestCache_Delete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New[string](ctx, 5*time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}
}
