package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vsinha/lineplan/pkg/application/services/orchestration"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/infrastructure/config"
	"github.com/vsinha/lineplan/pkg/infrastructure/events"
	"github.com/vsinha/lineplan/pkg/infrastructure/lock"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/postgres"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/sqlite"
)

// Runtime holds the wired planner for one CLI invocation or server process
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        repositories.Store
	Events       *events.InMemoryEventStore
	Orchestrator *orchestration.Orchestrator

	closers []func() error
}

// OpenStore opens the backend named by cfg.Storage.Driver
func OpenStore(cfg *config.Config) (repositories.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		store, err := sqlite.New(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.Connect(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewRuntime wires the store, the line locker and the event publishers.
// Redis and Kafka are used only when configured.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Events:  events.NewInMemoryEventStore(logger),
		closers: []func() error{store.Close},
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.URL != "" {
		ttl, err := cfg.LockTTL()
		if err != nil {
			rt.Close()
			return nil, err
		}
		client, err := lock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		locker = lock.NewRedisLocker(client, ttl, logger)
		logger.Info("using redis line locks")
	}

	publisher := events.MultiPublisher{rt.Events}
	if cfg.Kafka.Brokers != "" {
		kafka, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, kafka.Close)
		publisher = append(publisher, kafka)
		logger.Info("publishing schedule events to kafka", "topic", cfg.Kafka.Topic)
	}

	rt.Orchestrator = orchestration.NewOrchestrator(store, locker, publisher, logger, orchestration.Options{
		CommitRetries:     cfg.Scheduling.CommitRetries,
		AllowPartialPlans: cfg.Scheduling.AllowPartialPlans,
	})
	return rt, nil
}

// Close releases every backend in reverse order of opening
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
