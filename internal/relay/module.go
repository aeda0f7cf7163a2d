package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"

	"github.com/webitel/chat-routing-service/config"
)

var Module = fx.Module("relay",
	fx.Provide(
		ProvideBus,
		NewBridge,
		fx.Annotate(
			func(b *Bridge) Bridger { return b },
			fx.As(new(Bridger)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, bus Bus) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return bus.Close()
			},
		})
	}),
)

// ProvideBus picks the transport from config. A bus that cannot be reached
// at startup is non-fatal: after bounded retries the service degrades to
// single-node mode with the relay disabled.
func ProvideBus(cfg *config.Config, logger *slog.Logger, wmLogger watermill.LoggerAdapter) Bus {
	switch cfg.Bus.Driver {
	case "amqp":
		var bus Bus
		connect := func() error {
			b, err := NewAMQPBus(cfg.Bus.AMQPURI, cfg.Bus.NodeID, wmLogger)
			if err != nil {
				return err
			}
			bus = b
			return nil
		}

		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(time.Second),
			backoff.WithMaxInterval(10*time.Second),
		), 5)
		if err := backoff.Retry(connect, policy); err != nil {
			logger.Warn("relay bus unreachable, continuing in single-node mode",
				"uri", cfg.Bus.AMQPURI, "error", err)
			return Disabled()
		}
		logger.Info("relay bus connected", "driver", "amqp", "node_id", cfg.Bus.NodeID)
		return bus
	default:
		logger.Info("relay bus connected", "driver", "channel")
		return NewChannelBus(wmLogger)
	}
}
