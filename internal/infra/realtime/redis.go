package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel shared by every instance.
const Channel = "crm:lead-changes"

var tracer = otel.Tracer("realtime")

var _ port.ChangePublisher = (*RedisPublisher)(nil)

// RedisPublisher broadcasts lead changes to every instance through Redis.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, change domain.LeadChange) error {
	ctx, span := tracer.Start(ctx, "RedisPublisher.Publish")
	defer span.End()

	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return &domain.ErrExternalService{Service: "redis", Err: err}
	}
	return nil
}

const maxRelayBackoff = 30 * time.Second

// RelayUntilDone runs Relay, resubscribing with backoff whenever the
// subscription fails or the stream ends, until ctx is cancelled.
func RelayUntilDone(ctx context.Context, client *redis.Client, local port.ChangePublisher, cfg resilience.Config, logger *zap.Logger) {
	resilience.Reconnect(ctx, cfg, maxRelayBackoff,
		func(ctx context.Context) error { return Relay(ctx, client, local, logger) },
		func(err error, wait time.Duration) {
			logger.Warn("realtime: relay failed, resubscribing",
				zap.Error(err), zap.Duration("backoff", wait))
		},
	)
}

// Relay forwards Redis signals into a local publisher (normally a Hub)
// until ctx is cancelled.
func Relay(ctx context.Context, client *redis.Client, local port.ChangePublisher, logger *zap.Logger) error {
	sub := client.Subscribe(ctx, Channel)
	defer sub.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	logger.Info("realtime: relaying redis channel", zap.String("channel", Channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("%s: subscription closed", Channel)
			}
			var change domain.LeadChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				logger.Warn("realtime: malformed signal", zap.Error(err))
				continue
			}
			_ = local.Publish(ctx, change)
		}
	}
}
