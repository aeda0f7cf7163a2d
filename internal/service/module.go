package service

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/chat-routing-service/config"
	"github.com/webitel/chat-routing-service/internal/domain/registry"
	"github.com/webitel/chat-routing-service/internal/metrics"
	"github.com/webitel/chat-routing-service/internal/relay"
	"github.com/webitel/chat-routing-service/internal/store"
)

var Module = fx.Module("service",
	fx.Provide(
		func(
			st store.Store,
			reg registry.Registrar,
			bridge relay.Bridger,
			m *metrics.Metrics,
			logger *slog.Logger,
			cfg *config.Config,
		) (*ChatService, error) {
			return NewChatService(st, reg, bridge, m, logger, cfg.Fanout.Workers)
		},
		fx.Annotate(
			func(s *ChatService) FrameHandler { return s },
			fx.As(new(FrameHandler)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, s *ChatService) {
		lc.Append(fx.StopHook(s.Close))
	}),
)
