// Package sql implements the job repository DAOs on a relational database.
//
// Every operation runs in a transaction (read committed by default). Updates are version checked:
// an UPDATE that matches no row at the expected version surfaces as an optimistic locking failure.
// Table names carry a configurable prefix (BATCH_ by default) and ids come from sequence tables
// or native sequences, depending on the dialect.
package sql

import (
	"context"
	stdsql "database/sql"
	"errors"
	"unicode/utf8"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	"github.com/tigerroll/batchstate/pkg/batch/adapter/database/incrementer"
	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/batchstate/pkg/batch/core/tx"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/serialization"
)

// Options are the settings every relational DAO is constructed with.
type Options struct {
	// TablePrefix is prepended to every table and sequence name.
	TablePrefix string
	// MaxExitMessageLength bounds the stored exit descriptions.
	MaxExitMessageLength int
	// IsolationLevel names the isolation level of the DAO transactions, e.g. READ_COMMITTED.
	IsolationLevel string
}

// OptionsFromConfig extracts Options from the repository section of the configuration.
func OptionsFromConfig(cfg *config.RepositoryConfig) Options {
	return Options{
		TablePrefix:          cfg.TablePrefix,
		MaxExitMessageLength: cfg.MaxExitMessageLength,
		IsolationLevel:       cfg.IsolationLevel,
	}
}

func (o Options) withDefaults() Options {
	if o.TablePrefix == "" {
		o.TablePrefix = config.DefaultTablePrefix
	}
	if o.MaxExitMessageLength <= 0 {
		o.MaxExitMessageLength = config.DefaultMaxExitMessageLength
	}
	return o
}

// daoSupport holds what the four DAOs share: the executor, the transaction template and the prefix.
type daoSupport struct {
	exec                 database.QueryExecutor
	txTemplate           *tx.TransactionTemplate
	prefix               database.PrefixReplacer
	maxExitMessageLength int
}

func newDaoSupport(exec database.QueryExecutor, txManager tx.TransactionManager, opts Options) (*daoSupport, error) {
	opts = opts.withDefaults()
	isolation, err := tx.ParseIsolationLevel(opts.IsolationLevel)
	if err != nil {
		return nil, exception.NewIllegalArgumentError("sql.newDaoSupport", err.Error(), err)
	}
	return &daoSupport{
		exec:                 exec,
		txTemplate:           tx.NewTransactionTemplate(txManager, &stdsql.TxOptions{Isolation: isolation}),
		prefix:               database.NewPrefixReplacer(opts.TablePrefix),
		maxExitMessageLength: opts.MaxExitMessageLength,
	}, nil
}

// query substitutes the table prefix.
func (s *daoSupport) query(q string) string {
	return s.prefix.Apply(q)
}

func (s *daoSupport) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txTemplate.Execute(ctx, fn)
}

func (s *daoSupport) incrementer(sequence string) incrementer.DataFieldMaxValueIncrementer {
	return incrementer.New(s.exec, s.prefix.Prefix()+sequence)
}

// truncateExitDescription cuts description to the configured length, counted in characters.
func (s *daoSupport) truncateExitDescription(entity string, id int64, description string) string {
	if utf8.RuneCountInString(description) <= s.maxExitMessageLength {
		return description
	}
	logger.Debugf("Truncating long message before update of %s id=%d: %s", entity, id, description)
	return string([]rune(description)[:s.maxExitMessageLength])
}

// wrapError returns err unchanged when it already is a BatchError, otherwise wraps it for op.
func wrapError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	var batchErr *exception.BatchError
	if errors.As(err, &batchErr) {
		return err
	}
	return exception.NewBatchError(op, message, err, false, false)
}

// NewDaos creates the four relational DAOs over one connection.
func NewDaos(exec database.QueryExecutor, txManager tx.TransactionManager, opts Options, serializer serialization.ExecutionContextSerializer) (repository.Daos, error) {
	support, err := newDaoSupport(exec, txManager, opts)
	if err != nil {
		return repository.Daos{}, err
	}
	if serializer == nil {
		serializer = serialization.NewJSONExecutionContextSerializer()
	}
	return repository.Daos{
		JobInstanceDao:      NewSQLJobInstanceDao(support),
		JobExecutionDao:     NewSQLJobExecutionDao(support),
		StepExecutionDao:    NewSQLStepExecutionDao(support),
		ExecutionContextDao: NewSQLExecutionContextDao(support, serializer),
	}, nil
}
