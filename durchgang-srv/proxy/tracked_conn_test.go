package proxy

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCollector counts EndConnection calls and captures totals.
type countingCollector struct {
	stats.DummyCollector
	endCalls      atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	closeReason   atomic.Value
}

func (c *countingCollector) EndConnection(ctx context.Context, connectionID, bytesSent, bytesReceived int64, duration time.Duration, closeReason string) error {
	c.endCalls.Add(1)
	c.bytesSent.Store(bytesSent)
	c.bytesReceived.Store(bytesReceived)
	c.closeReason.Store(closeReason)
	return nil
}

func TestTrackedConnCountsBytes(t *testing.T) {
	near, far := net.Pipe()
	defer func() { _ = far.Close() }()

	collector := &countingCollector{}
	tracked := newTrackedConn(context.Background(), near, collector, 7)

	go func() {
		buf := make([]byte, 16)
		n, _ := far.Read(buf)
		_, _ = far.Write(buf[:n])
	}()

	payload := []byte("twelve bytes")
	_, err := tracked.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	require.NoError(t, tracked.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = tracked.Read(got)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), tracked.BytesSent())
	assert.Equal(t, int64(len(payload)), tracked.BytesReceived())
}

func TestTrackedConnEndRecordsOnce(t *testing.T) {
	near, far := net.Pipe()
	defer func() { _ = far.Close() }()
	defer func() { _ = near.Close() }()

	collector := &countingCollector{}
	tracked := newTrackedConn(context.Background(), near, collector, 3)

	go func() {
		buf := make([]byte, 4)
		_, _ = far.Read(buf)
	}()
	_, err := tracked.Write([]byte("data"))
	require.NoError(t, err)

	tracked.End(closeReasonEOF)
	tracked.End(closeReasonError)

	assert.Equal(t, int64(1), collector.endCalls.Load())
	assert.Equal(t, closeReasonEOF, collector.closeReason.Load())
	assert.Equal(t, int64(4), collector.bytesSent.Load())
}
