package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
)

// closeProvidersParams collects every provider so their connections are closed on shutdown.
type closeProvidersParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	DBProviders []database.DBProvider `group:"db_providers"`
}

func registerProviderShutdown(p closeProvidersParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			var lastErr error
			for _, provider := range p.DBProviders {
				if err := provider.CloseAll(); err != nil {
					lastErr = err
				}
			}
			return lastErr
		},
	})
}

// Module exports the connection resolver. Concrete providers come from the mysql, postgres
// and sqlite subpackages.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGormDBConnectionResolver,
		fx.As(new(database.DBConnectionResolver)),
	)),
	fx.Provide(fx.Annotate(
		NewGormTransactionManagerFactory,
		fx.As(new(database.TransactionManagerFactory)),
	)),
	fx.Invoke(registerProviderShutdown),
)
