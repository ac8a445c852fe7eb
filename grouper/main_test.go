package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/event-radar/internal/config"
	"github.com/DeafMist/event-radar/internal/grouping"
	"github.com/DeafMist/event-radar/internal/logger"
	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/storage"
)

func newTestDaemon(t *testing.T, timeout time.Duration) (*daemon, storage.Backend) {
	t.Helper()
	cfg := config.Common{
		StorageBackend: config.BackendSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "grouper.db"),
	}
	store, err := storage.Open(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := grouping.DefaultOptions()
	return &daemon{
		runner:  grouping.NewRunner(store, nil, logger.Discard()),
		options: opts,
		timeout: timeout,
		log:     logger.Discard(),
	}, store
}

func TestRunOnceGroupsFreshArticles(t *testing.T) {
	d, store := newTestDaemon(t, time.Minute)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)

	for _, a := range []models.Article{
		{Title: "Merkez Bankası faiz kararını açıkladı", SourceName: "A", Published: now},
		{Title: "Merkez Bankası faiz kararı açıklandı", SourceName: "B", Published: now},
		{Title: "Süper Lig'de derbi heyecanı", SourceName: "C", Published: now},
	} {
		_, err := store.SaveArticle(ctx, a)
		require.NoError(t, err)
	}

	require.NoError(t, d.runOnce(ctx, "test"))

	st, err := store.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.TotalGroups)
	require.Equal(t, 2, st.GroupedArticles)

	require.NoError(t, d.runOnce(ctx, "test"))
	st, err = store.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.TotalGroups)
}

func TestRunOnceReportsCancelledRun(t *testing.T) {
	d, _ := newTestDaemon(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, d.runOnce(ctx, "test"))
}
