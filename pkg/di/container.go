// Package di provides dependency injection container
package di

import (
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssargent/actionkv/pkg/config"
	"github.com/ssargent/actionkv/pkg/logging"
	"github.com/ssargent/actionkv/pkg/store"
	"go.uber.org/dig"
)

// Options seeds the container
type Options struct {
	Config    *config.Config
	LogOutput io.Writer            // defaults to os.Stderr
	Registry  *prometheus.Registry // defaults to a fresh registry
}

// Container holds all the dependencies for the application
type Container struct {
	dig   *dig.Container
	store *store.KVStore
}

// NewContainer registers the constructors for config, logger, metrics and
// store. Nothing is built until it is asked for.
func NewContainer(opts Options) (*Container, error) {
	if opts.Config == nil {
		return nil, errors.New("di: config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := dig.New()
	constructors := []interface{}{
		func() *config.Config { return opts.Config },
		func(cfg *config.Config) *slog.Logger { return logging.New(cfg.Logging, out) },
		func() *prometheus.Registry { return reg },
		func(reg *prometheus.Registry) *store.Metrics { return store.NewMetrics(reg) },
		storeConfig,
		openStore,
	}
	for _, constructor := range constructors {
		if err := c.Provide(constructor); err != nil {
			return nil, errors.Wrap(err, "di: provide")
		}
	}

	return &Container{dig: c}, nil
}

func storeConfig(cfg *config.Config, logger *slog.Logger, metrics *store.Metrics) store.KVStoreConfig {
	return store.KVStoreConfig{
		Path:            cfg.File,
		IndexPath:       cfg.IndexFile,
		PersistIndex:    cfg.PersistIndex,
		FsyncInterval:   cfg.FsyncInterval,
		RecoverTornTail: cfg.RecoverTornTail,
		Logger:          logger,
		Metrics:         metrics,
	}
}

func openStore(cfg store.KVStoreConfig) (*store.KVStore, error) {
	kv, _, err := store.OpenKVStore(cfg)
	return kv, err
}

// Store opens and loads the store on first use
func (c *Container) Store() (*store.KVStore, error) {
	if c.store != nil {
		return c.store, nil
	}
	err := c.dig.Invoke(func(kv *store.KVStore) {
		c.store = kv
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return c.store, nil
}

// Logger returns the configured logger
func (c *Container) Logger() *slog.Logger {
	var logger *slog.Logger
	_ = c.dig.Invoke(func(l *slog.Logger) { logger = l })
	return logger
}

// Registry returns the metrics registry the store reports to
func (c *Container) Registry() *prometheus.Registry {
	var reg *prometheus.Registry
	_ = c.dig.Invoke(func(r *prometheus.Registry) { reg = r })
	return reg
}

// Close closes the store if it was opened
func (c *Container) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
