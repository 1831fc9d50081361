package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm/sqlite"
	usecase "github.com/tigerroll/batchstate/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	incrementer "github.com/tigerroll/batchstate/pkg/batch/core/support/incrementer"
	metrics "github.com/tigerroll/batchstate/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/migration"
	repositorymodule "github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository"
	sqlrepo "github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// services are the objects the operator commands work with.
type services struct {
	fx.In
	Explorer    repository.JobExplorer
	Operator    usecase.JobOperator
	Incrementer incrementer.JobParametersIncrementer `name:"runIdIncrementer"`
	Security    *config.SecurityConfig
}

// schemaServices are the objects the schema commands work with.
type schemaServices struct {
	fx.In
	Repository *config.RepositoryConfig
	Factory    *sqlrepo.DaoFactory `optional:"true"`
}

// readConfig returns the raw configuration document. An empty path yields an empty document,
// so the defaults apply.
func (o *rootOptions) readConfig() (config.EmbeddedConfig, error) {
	if o.configFile == "" {
		return config.EmbeddedConfig{}, nil
	}
	data, err := os.ReadFile(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", o.configFile, err)
	}
	return config.EmbeddedConfig(data), nil
}

// applicationOptions builds the Fx options shared by every command.
func (o *rootOptions) applicationOptions(data config.EmbeddedConfig) []fx.Option {
	var options []fx.Option

	options = append(options, fx.Supply(
		data,
		fx.Annotate(o.envFile, fx.ResultTags(`name:"envFilePath"`)),
	))
	options = append(options, logger.Module)
	options = append(options, config.Module)
	options = append(options, gormadapter.Module)
	options = append(options, mysql.Module)
	options = append(options, postgres.Module)
	options = append(options, sqlite.Module)
	options = append(options, repositorymodule.Module)
	options = append(options, metrics.Module)
	options = append(options, usecase.Module)
	options = append(options, incrementer.Module)

	return options
}

// run starts an application populating target through invoke, calls fn and stops the application.
func (o *rootOptions) run(ctx context.Context, invoke interface{}, fn func(context.Context) error) error {
	data, err := o.readConfig()
	if err != nil {
		return err
	}

	app := fx.New(append(o.applicationOptions(data), fx.Invoke(invoke))...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			logger.Warnf("Failed to stop the application cleanly: %v", err)
		}
	}()

	return fn(ctx)
}

// withServices runs fn against the configured job repository.
func (o *rootOptions) withServices(ctx context.Context, fn func(context.Context, services) error) error {
	var svc services
	return o.run(ctx, func(s services) { svc = s }, func(ctx context.Context) error {
		return fn(ctx, svc)
	})
}

// withMigrator runs fn with a Migrator over the metadata connection. It requires the sql repository.
func (o *rootOptions) withMigrator(ctx context.Context, fn func(context.Context, *migration.Migrator) error) error {
	var svc schemaServices
	return o.run(ctx, func(s schemaServices) { svc = s }, func(ctx context.Context) error {
		if svc.Repository.Type != config.RepositoryTypeSQL || svc.Factory == nil {
			return fmt.Errorf("schema commands require batch.repository.type '%s', got '%s'", config.RepositoryTypeSQL, svc.Repository.Type)
		}
		conn, err := svc.Factory.Connection(ctx)
		if err != nil {
			return err
		}
		migrator := migration.NewMigrator(conn, svc.Repository.TablePrefix)
		defer func() {
			if err := migrator.Close(); err != nil {
				logger.Debugf("Closing the migrator: %v", err)
			}
		}()
		return fn(ctx, migrator)
	})
}
