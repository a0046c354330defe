package dbexec

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/sqlexec_go/internal/crud"
	"github.com/sqlexec_go/internal/dbclient"
)

// Opener hands out dedicated connections. *dbclient.Pool implements it.
type Opener interface {
	Open(ctx context.Context) (dbclient.Client, error)
	Close() error
}

// FactoryConfig configures NewFactory.
type FactoryConfig struct {
	// Driver is the database/sql driver name. Defaults to "mysql".
	Driver string
	// DSN is the connection string. Required.
	DSN string
	// DefaultTimeout is handed to every executor. Defaults to
	// DefaultTimeout; negative means no deadline.
	DefaultTimeout time.Duration
	Logger         *log.Logger
	// CRUD is shared by every executor. Defaults to a builder for the
	// driver's dialect.
	CRUD *crud.Builder
	// Opener replaces the pool opened from Driver and DSN.
	Opener Opener
}

// Factory creates executors, each on its own connection.
type Factory struct {
	opener  Opener
	timeout time.Duration
	crud    *crud.Builder
	logger  *log.Logger
	closed  bool
}

// NewFactory validates cfg and prepares the connection pool. It does not
// connect; a blank DSN fails with a *ConfigurationError.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, &ConfigurationError{Field: "dsn", Reason: "must not be blank"}
	}
	if cfg.Driver == "" {
		cfg.Driver = "mysql"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.CRUD == nil {
		d, err := crud.ParseDialect(cfg.Driver)
		if err != nil {
			cfg.Logger.Printf("dbexec: %v, generating %s statements", err, d)
		}
		cfg.CRUD = crud.NewBuilder(d)
	}
	if cfg.Opener == nil {
		pool, err := dbclient.OpenPool(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, &ConfigurationError{Field: "dsn", Reason: err.Error()}
		}
		cfg.Opener = pool
	}
	return &Factory{
		opener:  cfg.Opener,
		timeout: cfg.DefaultTimeout,
		crud:    cfg.CRUD,
		logger:  cfg.Logger,
	}, nil
}

// DefaultTimeout returns the timeout given to new executors.
func (f *Factory) DefaultTimeout() time.Duration {
	return f.timeout
}

// CreateExecutor opens a connection and returns an Executor owning it.
func (f *Factory) CreateExecutor(ctx context.Context) (*Executor, error) {
	if f.closed {
		return nil, ErrClosed
	}
	client, err := f.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	return NewExecutor(client, ExecutorConfig{
		DefaultTimeout: f.timeout,
		CRUD:           f.crud,
		Logger:         f.logger,
	}), nil
}

// Close releases the pool. Executors created earlier should be closed first.
func (f *Factory) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.opener.Close()
}
