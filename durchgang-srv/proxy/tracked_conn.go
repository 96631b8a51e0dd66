package proxy

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/stats"
)

// flushThreshold is how many unreported bytes accumulate before a
// periodic data-transfer record is emitted for long-lived tunnels.
const flushThreshold = 64 * 1024

// trackedConn wraps the outbound target connection and tracks byte
// counts for the stats collector. Writes are client-to-origin traffic,
// reads are origin-to-client.
type trackedConn struct {
	net.Conn
	collector    stats.Collector
	connectionID int64
	startTime    time.Time
	ctx          context.Context

	bytesSent     int64 // accessed atomically
	bytesReceived int64 // accessed atomically
	flushSent     int64 // accessed atomically
	flushReceived int64 // accessed atomically

	endOnce sync.Once
}

// newTrackedConn creates a new tracked connection.
func newTrackedConn(ctx context.Context, conn net.Conn, collector stats.Collector, connectionID int64) *trackedConn {
	return &trackedConn{
		Conn:         conn,
		collector:    collector,
		connectionID: connectionID,
		startTime:    time.Now(),
		ctx:          ctx,
	}
}

func (c *trackedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		atomic.AddInt64(&c.bytesReceived, int64(n))
		c.maybeFlush()
	}
	return n, err
}

func (c *trackedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		atomic.AddInt64(&c.bytesSent, int64(n))
		c.maybeFlush()
	}
	return n, err
}

// maybeFlush reports accumulated deltas once enough unreported bytes
// pile up, so long tunnels show up in stats before they end.
func (c *trackedConn) maybeFlush() {
	sent := atomic.LoadInt64(&c.bytesSent)
	received := atomic.LoadInt64(&c.bytesReceived)
	flushedSent := atomic.LoadInt64(&c.flushSent)
	flushedReceived := atomic.LoadInt64(&c.flushReceived)

	deltaSent := sent - flushedSent
	deltaReceived := received - flushedReceived
	if deltaSent+deltaReceived < flushThreshold {
		return
	}

	if atomic.CompareAndSwapInt64(&c.flushSent, flushedSent, sent) {
		atomic.StoreInt64(&c.flushReceived, received)
		_ = c.collector.RecordDataTransfer(c.ctx, c.connectionID, deltaSent, deltaReceived)
	}
}

// BytesSent returns the bytes written to the target so far.
func (c *trackedConn) BytesSent() int64 {
	return atomic.LoadInt64(&c.bytesSent)
}

// BytesReceived returns the bytes read from the target so far.
func (c *trackedConn) BytesReceived() int64 {
	return atomic.LoadInt64(&c.bytesReceived)
}

// End records the final connection statistics. Safe to call multiple
// times; only the first call records.
func (c *trackedConn) End(closeReason string) {
	c.endOnce.Do(func() {
		_ = c.collector.EndConnection(c.ctx, c.connectionID,
			c.BytesSent(), c.BytesReceived(), time.Since(c.startTime), closeReason)
	})
}
