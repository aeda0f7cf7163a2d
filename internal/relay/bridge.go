package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/webitel/chat-routing-service/internal/domain/registry"
	"github.com/webitel/chat-routing-service/internal/store"
)

// Bridger is what the routing core sees of the relay.
type Bridger interface {
	Subscribe(ctx context.Context, userID int64) error
	Unsubscribe(userID int64)
	Publish(ctx context.Context, userID int64, payload []byte) error
}

// Bridge ties the bus to the local registry and the offline queue. Inbound
// relayed payloads are delivered locally when possible and queued otherwise,
// which absorbs the race between a disconnect and a relay already in flight.
type Bridge struct {
	bus      Bus
	registry registry.Registrar
	offline  store.OfflineStore
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

var _ Bridger = (*Bridge)(nil)

func NewBridge(bus Bus, reg registry.Registrar, offline store.OfflineStore, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		registry: reg,
		offline:  offline,
		logger:   logger,
		// The breaker keeps a dead bus from stalling every delivery; while
		// open, publishes fail fast and the router queues offline instead.
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "relay-publish",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Subscribe makes this node the receiver for the user's channel.
func (b *Bridge) Subscribe(ctx context.Context, userID int64) error {
	return b.bus.Subscribe(ctx, userID, func(payload []byte) {
		b.onRelayed(userID, payload)
	})
}

func (b *Bridge) Unsubscribe(userID int64) {
	b.bus.Unsubscribe(userID)
}

// Publish sends a payload toward whichever node holds the user's channel.
func (b *Bridge) Publish(ctx context.Context, userID int64, payload []byte) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.bus.Publish(ctx, userID, payload)
	})
	return err
}

// onRelayed handles a payload another node published for a locally
// subscribed user. A delivery that misses the registry is not dropped: the
// user disconnected mid-flight, so the payload goes to the offline queue.
func (b *Bridge) onRelayed(userID int64, payload []byte) {
	if b.registry.LookupAndSend(userID, payload) {
		return
	}
	if err := b.offline.Append(context.Background(), userID, payload); err != nil {
		b.logger.Error("relayed message lost: offline append failed",
			"user_id", userID, "error", err)
	}
}
