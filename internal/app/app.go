package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"category-tree/internal/config"
	"category-tree/internal/database"
	"category-tree/internal/event"
	"category-tree/internal/model"
	"category-tree/internal/repository"
	"category-tree/internal/service"
	"category-tree/internal/telemetry"
)

// App holds the wired services of one process.
type App struct {
	Store      repository.TreeStore
	Bus        *event.InMemoryBus
	Query      *service.QueryService
	Stats      *service.StatisticsService
	Reparent   *service.ReparentService
	Batch      *service.BatchService
	Categories *service.CategoryService
	Audit      *service.AuditService
	Metrics    prometheus.Gatherer

	cleanupFuncs []func()
	closeOnce    sync.Once
}

// New connects to PostgreSQL, ensures the schema and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	slog.Debug("connecting to PostgreSQL")
	db, err := database.New(ctx, database.PoolConfig{
		URL:              cfg.DatabaseURL,
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}
	slog.Debug("database ready")

	a := NewWithStore(repository.NewPostgresStore(db.Pool), cfg.Limits(), nil)
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := a.startTelemetry(ctx, cfg, os.Stderr); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start telemetry: %w", err)
	}
	return a, nil
}

// startTelemetry installs tracing and registers the metrics push that runs on Close.
func (a *App) startTelemetry(ctx context.Context, cfg *config.Config, traceOut io.Writer) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:   "treectl",
		TraceExporter: cfg.TraceExporter,
		Pushgateway:   cfg.Pushgateway,
		Job:           cfg.MetricsJob,
	}, traceOut, a.Metrics)
	if err != nil {
		return err
	}

	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	})
	return nil
}

// NewWithStore wires the services over an existing store. hook may be nil.
func NewWithStore(store repository.TreeStore, limits model.Limits, hook service.ConstraintHook) *App {
	bus := event.NewBus()
	stats := service.NewStatisticsService(store, bus)
	reparent := service.NewReparentService(store, stats, hook, bus, limits)

	a := &App{
		Store:      store,
		Bus:        bus,
		Query:      service.NewQueryService(store),
		Stats:      stats,
		Reparent:   reparent,
		Batch:      service.NewBatchService(store, reparent, bus),
		Categories: service.NewCategoryService(store, stats, bus, limits),
		Audit:      service.NewAuditService(store),
		Metrics:    service.Metrics(),
	}

	events, unsubscribe := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			slog.Debug("event published", "id", e.ID, "type", e.Type, "node_id", e.NodeID, "actor_id", e.ActorID)
		}
	}()
	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		unsubscribe()
		<-done
	})

	return a
}

// Close runs the cleanup funcs in reverse order. It is safe to call twice.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
			a.cleanupFuncs[i]()
		}
	})
}
