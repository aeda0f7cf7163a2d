// Package relay bridges the node-local connection registry to a fleet-wide
// per-user channel space, so a user logged into one node receives messages
// sent from any other.
package relay

import (
	"context"
	"fmt"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

// Bus is the reliable fan-out transport contract. Any at-least-once pub/sub
// backend suffices; the subscribed node is the sole receiver for a user's
// channel while the subscription holds.
type Bus interface {
	// Subscribe routes every payload published to userID's channel into fn.
	// Re-subscribing the same user replaces the previous subscription.
	Subscribe(ctx context.Context, userID int64, fn func(payload []byte)) error
	Unsubscribe(userID int64)
	Publish(ctx context.Context, userID int64, payload []byte) error
	Close() error
}

// userTopic names the per-user channel on the bus.
func userTopic(userID int64) string {
	return fmt.Sprintf("chat.user.%d", userID)
}

// Disabled returns a bus that accepts no traffic. It stands in when the
// transport is unreachable at startup: the service keeps running in
// single-node mode and every cross-node delivery degrades to the offline
// queue.
func Disabled() Bus { return disabledBus{} }

type disabledBus struct{}

func (disabledBus) Subscribe(context.Context, int64, func([]byte)) error {
	return model.ErrBusUnavailable
}
func (disabledBus) Unsubscribe(int64) {}
func (disabledBus) Publish(context.Context, int64, []byte) error {
	return model.ErrBusUnavailable
}
func (disabledBus) Close() error { return nil }
