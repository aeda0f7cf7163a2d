package ws

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/chat-routing-service/config"
	"github.com/webitel/chat-routing-service/internal/service"
)

var Module = fx.Module("ws-gateway",
	fx.Provide(
		func(cfg *config.Config, handler service.FrameHandler, logger *slog.Logger) *Gateway {
			return NewGateway(cfg.WS.Addr, cfg.WS.Path, handler, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, g *Gateway) {
		lc.Append(fx.Hook{
			OnStart: g.Start,
			OnStop:  g.Stop,
		})
	}),
)
