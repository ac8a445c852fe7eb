// Package storage opens the article store selected by configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/event-radar/internal/config"
	"github.com/DeafMist/event-radar/internal/elasticsearch"
	"github.com/DeafMist/event-radar/internal/grouping"
	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/storage/sqlstore"
)

// Backend is a grouping store that also serves inspection queries.
type Backend interface {
	grouping.Store
	SaveArticle(ctx context.Context, a models.Article) (int64, error)
	ListGroups(ctx context.Context, limit int) ([]models.GroupSummary, error)
	SearchGroups(ctx context.Context, term string, limit int) ([]models.GroupSummary, error)
	Status(ctx context.Context) (models.GroupingStatus, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*sqlstore.Store)(nil)
	_ Backend = (*elasticsearch.Client)(nil)
)

// Open connects to the backend named by cfg.StorageBackend.
func Open(ctx context.Context, cfg config.Common, log *slog.Logger) (Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite, config.BackendPostgres:
		dialect, err := sqlstore.DialectByName(cfg.StorageBackend)
		if err != nil {
			return nil, err
		}
		dsn := cfg.SQLitePath
		if dialect.Name == sqlstore.Postgres.Name {
			dsn = cfg.PostgresDSN
		}
		store, err := sqlstore.Open(ctx, dialect, dsn, log)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendElasticsearch:
		client, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		if err := client.Health(ctx); err != nil {
			return nil, err
		}
		if err := client.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("prepare elasticsearch index: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// OpenWithRetry keeps calling Open with exponential backoff, capped at 30s,
// until it succeeds, maxRetries attempts fail or ctx is done.
func OpenWithRetry(ctx context.Context, cfg config.Common, log *slog.Logger, maxRetries int) (Backend, error) {
	retryDelay := 2 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		backend, err := Open(attemptCtx, cfg, log)
		cancel()
		if err == nil {
			return backend, nil
		}
		lastErr = err
		if i == maxRetries-1 {
			break
		}

		log.Warn("storage not ready, retrying",
			slog.String("backend", cfg.StorageBackend),
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
			// Continue to next attempt
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2 // Exponential backoff
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	return nil, fmt.Errorf("open %s storage after %d attempts: %w", cfg.StorageBackend, maxRetries, lastErr)
}
