// Package repository selects the job repository backend configured under batch.repository.type.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	domain "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// DaosParams are the Fx dependencies of NewDaos.
type DaosParams struct {
	fx.In
	Cfg        *config.RepositoryConfig
	InMemory   domain.Daos     `name:"inmemory"`
	SQLFactory *sql.DaoFactory `optional:"true"`
}

// NewDaos returns the DAOs of the configured backend. The relational backend needs the
// sql module and a database adapter module in the application.
func NewDaos(p DaosParams) (domain.Daos, error) {
	switch p.Cfg.Type {
	case "", config.RepositoryTypeMemory:
		logger.Infof("Job repository uses the in-memory backend.")
		return p.InMemory, nil
	case config.RepositoryTypeSQL:
		if p.SQLFactory == nil {
			return domain.Daos{}, fmt.Errorf("batch.repository.type is '%s' but no relational DAO factory is registered", p.Cfg.Type)
		}
		return p.SQLFactory.Create(context.Background())
	default:
		return domain.Daos{}, fmt.Errorf("unknown batch.repository.type '%s'", p.Cfg.Type)
	}
}

// Module provides both backends and the selected repository.Daos.
var Module = fx.Options(
	inmemory.Module,
	sql.Module,
	fx.Provide(NewDaos),
)
