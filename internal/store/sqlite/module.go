package sqlite

import (
	"context"

	"go.uber.org/fx"

	"github.com/webitel/chat-routing-service/config"
	"github.com/webitel/chat-routing-service/internal/store"
)

var Module = fx.Module("sqlite-store",
	fx.Provide(
		func(cfg *config.Config) (*DB, error) {
			return New(cfg.Store.Path)
		},
		fx.Annotate(
			func(db *DB) store.Store { return db },
			fx.As(new(store.Store)),
		),
		fx.Annotate(
			func(db *DB) store.OfflineStore { return db },
			fx.As(new(store.OfflineStore)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, db *DB) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// A restart must not strand presence from the previous run.
				return db.ResetAllStates(ctx)
			},
			OnStop: func(context.Context) error {
				return db.Close()
			},
		})
	}),
)
