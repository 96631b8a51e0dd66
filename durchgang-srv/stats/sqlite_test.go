package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteCollector(t *testing.T) *SQLiteCollector {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "stats_test.db")
	collector, err := NewSQLiteCollector(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = collector.Close()
	})
	return collector
}

func TestSQLiteConnectionLifecycle(t *testing.T) {
	collector := newTestSQLiteCollector(t)
	ctx := context.Background()

	id, err := collector.StartConnection(ctx, "192.168.1.10", "example.com", 443, "connect")
	require.NoError(t, err)
	assert.Positive(t, id)

	stats, err := collector.GetOverviewStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConnections)
	assert.Equal(t, int64(1), stats.ActiveConnections)

	require.NoError(t, collector.RecordDataTransfer(ctx, id, 100, 2048))
	require.NoError(t, collector.EndConnection(ctx, id, 512, 4096, 3*time.Second, "eof"))

	stats, err = collector.GetOverviewStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConnections)
	assert.Equal(t, int64(0), stats.ActiveConnections)
	assert.Equal(t, int64(4096), stats.TotalBytesIn)
	assert.Equal(t, int64(512), stats.TotalBytesOut)
}

func TestSQLiteRecordError(t *testing.T) {
	collector := newTestSQLiteCollector(t)
	ctx := context.Background()

	id, err := collector.StartConnection(ctx, "10.0.0.1", "unreachable.example", 80, "http")
	require.NoError(t, err)

	require.NoError(t, collector.RecordError(ctx, id, "dial_error", "connection refused"))
	require.NoError(t, collector.RecordError(ctx, id, "dial_error", "connection refused"))

	stats, err := collector.GetOverviewStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalErrors)
}

func TestSQLiteMultipleConnections(t *testing.T) {
	collector := newTestSQLiteCollector(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id, err := collector.StartConnection(ctx, "10.0.0.2", "example.com", 80, "http")
		require.NoError(t, err)
		require.NoError(t, collector.EndConnection(ctx, id, 10, 20, time.Second, "eof"))
	}

	stats, err := collector.GetOverviewStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalConnections)
	assert.Equal(t, int64(100), stats.TotalBytesIn)
	assert.Equal(t, int64(50), stats.TotalBytesOut)
}

func TestSQLiteHealthCheck(t *testing.T) {
	collector := newTestSQLiteCollector(t)
	require.NoError(t, collector.HealthCheck(context.Background()))
}
