package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRelayUntilDone_KeepsResubscribing(t *testing.T) {
	// Nothing listens on port 1, so every subscription attempt fails fast.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	hub := NewHub(zap.NewNop(), nil)
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		RelayUntilDone(ctx, rdb, hub, resilience.Config{InitialBackoff: 5 * time.Millisecond}, zap.New(core))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop with its context")
	}

	if n := logs.FilterMessage("realtime: relay failed, resubscribing").Len(); n < 2 {
		t.Fatalf("expected repeated resubscribe attempts, got %d", n)
	}
}
