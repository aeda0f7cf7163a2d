package cmd

import (
	"go.uber.org/fx"

	"github.com/webitel/chat-routing-service/config"
	"github.com/webitel/chat-routing-service/internal/domain/registry"
	tcphandler "github.com/webitel/chat-routing-service/internal/handler/tcp"
	wshandler "github.com/webitel/chat-routing-service/internal/handler/ws"
	"github.com/webitel/chat-routing-service/internal/metrics"
	"github.com/webitel/chat-routing-service/internal/relay"
	"github.com/webitel/chat-routing-service/internal/service"
	"github.com/webitel/chat-routing-service/internal/store/sqlite"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		registry.Module,
		sqlite.Module,
		relay.Module,
		metrics.Module,
		service.Module,
		tcphandler.Module,
		wshandler.Module,
	)
}
