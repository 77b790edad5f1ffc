package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/companion/internal/config"
	"github.com/ent0n29/companion/internal/eventlog"
	"github.com/ent0n29/companion/internal/httpapi"
	"github.com/ent0n29/companion/internal/janitor"
	"github.com/ent0n29/companion/internal/memory"
	"github.com/ent0n29/companion/internal/observability"
	"github.com/ent0n29/companion/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Store
	Events   *eventlog.Store
	Memory   *memory.Archiver
	Janitor  *janitor.Janitor
	Metrics  *observability.Metrics

	// MemoryMode is "postgres" or "in-memory".
	MemoryMode string

	// Cleanup should be called on shutdown to release external resources (DB).
	Cleanup func() error
}

// Build creates each store once and hands the same instances to every
// consumer.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sessions, err := session.NewStore(session.Config{
		Dir:           cfg.ContextDir,
		MaxMessages:   cfg.ContextMaxMessages,
		CacheTTL:      cfg.ContextCacheTTL,
		CacheSize:     cfg.ContextCacheSize,
		RoundDuration: cfg.MonoRoundDuration,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}

	events, err := eventlog.NewStore(eventlog.Config{
		Dir:           cfg.EventLogDir,
		RetentionDays: cfg.EventRetentionDays,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("event log init failed: %w", err)
	}

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	memoryMode := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		memoryMode = "postgres"
	}
	archiver := memory.NewArchiver(memoryStore, logger)

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:   sessions,
		Events:     events,
		Memory:     archiver,
		MemoryMode: memoryMode,
		Metrics:    metrics,
		Logger:     logger,
	})

	jan := janitor.New(events, sessions, cfg.EventRetentionDays, logger)

	cleanup := func() error {
		var errs []error
		if err := memoryStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close memory store: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Sessions:   sessions,
		Events:     events,
		Memory:     archiver,
		Janitor:    jan,
		Metrics:    metrics,
		MemoryMode: memoryMode,
		Cleanup:    cleanup,
	}, nil
}
