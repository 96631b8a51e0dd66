package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCollector captures calls for assertions in tests.
type recordingCollector struct {
	mu        sync.Mutex
	nextID    int64
	started   []string
	ended     []completedConnectionData
	transfers []dataTransferData
	errors    []errorData
	closed    atomic.Bool
}

func (r *recordingCollector) StartConnection(ctx context.Context, clientIP, targetHost string, targetPort int, protocol string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.started = append(r.started, targetHost)
	return r.nextID, nil
}

func (r *recordingCollector) EndConnection(ctx context.Context, connectionID, bytesSent, bytesReceived int64, duration time.Duration, closeReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, completedConnectionData{connectionID, bytesSent, bytesReceived, duration, closeReason})
	return nil
}

func (r *recordingCollector) RecordDataTransfer(ctx context.Context, connectionID, bytesSent, bytesReceived int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, dataTransferData{connectionID, bytesSent, bytesReceived})
	return nil
}

func (r *recordingCollector) RecordError(ctx context.Context, connectionID int64, errorType, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, errorData{connectionID, errorType, errorMessage})
	return nil
}

func (r *recordingCollector) GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	return &OverviewStats{}, nil
}

func (r *recordingCollector) HealthCheck(ctx context.Context) error { return nil }

func (r *recordingCollector) Close() error {
	r.closed.Store(true)
	return nil
}

func TestBufferedStartConnectionPassthrough(t *testing.T) {
	underlying := &recordingCollector{}
	buffered := NewBufferedCollectorWithInterval(underlying, time.Hour, 10)
	defer func() { _ = buffered.Close() }()

	ctx := context.Background()
	id1, err := buffered.StartConnection(ctx, "10.0.0.1", "a.example", 80, "http")
	require.NoError(t, err)
	id2, err := buffered.StartConnection(ctx, "10.0.0.1", "b.example", 443, "connect")
	require.NoError(t, err)

	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)
}

func TestBufferedFlushDeliversEvents(t *testing.T) {
	underlying := &recordingCollector{}
	buffered := NewBufferedCollectorWithInterval(underlying, time.Hour, 10)
	defer func() { _ = buffered.Close() }()

	ctx := context.Background()
	id, err := buffered.StartConnection(ctx, "10.0.0.1", "a.example", 80, "http")
	require.NoError(t, err)

	require.NoError(t, buffered.RecordDataTransfer(ctx, id, 100, 200))
	require.NoError(t, buffered.RecordError(ctx, id, "relay_error", "broken pipe"))
	require.NoError(t, buffered.EndConnection(ctx, id, 100, 200, time.Second, "idle_timeout"))

	underlying.mu.Lock()
	pending := len(underlying.ended) + len(underlying.transfers) + len(underlying.errors)
	underlying.mu.Unlock()
	assert.Equal(t, 0, pending, "events should be buffered until flush")

	buffered.ForceFlush()

	underlying.mu.Lock()
	defer underlying.mu.Unlock()
	require.Len(t, underlying.ended, 1)
	require.Len(t, underlying.transfers, 1)
	require.Len(t, underlying.errors, 1)
	assert.Equal(t, "idle_timeout", underlying.ended[0].closeReason)
	assert.Equal(t, int64(200), underlying.transfers[0].bytesReceived)
}

func TestBufferedDropsWhenFull(t *testing.T) {
	underlying := &recordingCollector{}
	buffered := NewBufferedCollectorWithInterval(underlying, time.Hour, 2)
	defer func() { _ = buffered.Close() }()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, buffered.RecordDataTransfer(ctx, int64(i), 1, 1))
	}

	buffered.ForceFlush()

	underlying.mu.Lock()
	defer underlying.mu.Unlock()
	assert.Len(t, underlying.transfers, 2, "events beyond the buffer bound should be dropped")
}

func TestBufferedCloseFlushesAndClosesUnderlying(t *testing.T) {
	underlying := &recordingCollector{}
	buffered := NewBufferedCollectorWithInterval(underlying, time.Hour, 10)

	ctx := context.Background()
	require.NoError(t, buffered.EndConnection(ctx, 1, 10, 20, time.Second, "eof"))
	require.NoError(t, buffered.Close())

	underlying.mu.Lock()
	defer underlying.mu.Unlock()
	assert.Len(t, underlying.ended, 1)
	assert.True(t, underlying.closed.Load())
}
