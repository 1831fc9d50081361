package sql

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql/schema"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/serialization"
)

// DaoFactory opens the metadata connection and builds the relational DAOs on demand,
// so that applications running on the in-memory backend never touch a database.
type DaoFactory struct {
	resolver   database.DBConnectionResolver
	txFactory  database.TransactionManagerFactory
	cfg        *config.RepositoryConfig
	serializer serialization.ExecutionContextSerializer
}

// DaoFactoryParams are the Fx dependencies of NewDaoFactory.
type DaoFactoryParams struct {
	fx.In
	Resolver   database.DBConnectionResolver
	TxFactory  database.TransactionManagerFactory
	Cfg        *config.RepositoryConfig
	Serializer serialization.ExecutionContextSerializer `optional:"true"`
}

// NewDaoFactory creates a DaoFactory.
func NewDaoFactory(p DaoFactoryParams) *DaoFactory {
	return &DaoFactory{
		resolver:   p.Resolver,
		txFactory:  p.TxFactory,
		cfg:        p.Cfg,
		serializer: p.Serializer,
	}
}

// Connection resolves the connection named by batch.repository.database_ref.
func (f *DaoFactory) Connection(ctx context.Context) (database.DBConnection, error) {
	conn, err := f.resolver.ResolveDBConnection(ctx, f.cfg.DatabaseRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve job repository connection '%s': %w", f.cfg.DatabaseRef, err)
	}
	return conn, nil
}

// Create resolves the connection, creates the schema when batch.repository.initialize_schema
// is set, and returns the four DAOs.
func (f *DaoFactory) Create(ctx context.Context) (repository.Daos, error) {
	conn, err := f.Connection(ctx)
	if err != nil {
		return repository.Daos{}, err
	}
	txManager, err := f.txFactory.NewTransactionManager(conn)
	if err != nil {
		return repository.Daos{}, err
	}

	opts := OptionsFromConfig(f.cfg).withDefaults()
	if f.cfg.InitializeSchema {
		if err := schema.NewInitializer(conn, opts.TablePrefix).Create(ctx); err != nil {
			return repository.Daos{}, fmt.Errorf("failed to initialize the job repository schema: %w", err)
		}
	}

	daos, err := NewDaos(conn, txManager, opts, f.serializer)
	if err != nil {
		return repository.Daos{}, err
	}
	logger.Infof("Job repository uses database '%s' (%s, prefix %s)", conn.Name(), conn.Type(), opts.TablePrefix)
	return daos, nil
}

// Module provides the DaoFactory.
var Module = fx.Options(
	fx.Provide(NewDaoFactory),
)
