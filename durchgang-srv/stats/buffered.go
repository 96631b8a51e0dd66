package stats

import (
	"context"
	"sync"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/logger"
)

// DefaultFlushInterval is how often buffered events are written out.
const DefaultFlushInterval = 5 * time.Second

// DefaultMaxBuffered bounds each event buffer. Events arriving while a
// buffer is full are dropped so stat writes never block the data path.
const DefaultMaxBuffered = 1000

type completedConnectionData struct {
	connectionID  int64
	bytesSent     int64
	bytesReceived int64
	duration      time.Duration
	closeReason   string
}

type errorData struct {
	connectionID int64
	errorType    string
	errorMessage string
}

type dataTransferData struct {
	connectionID  int64
	bytesSent     int64
	bytesReceived int64
}

// BufferedCollector wraps another Collector and batches writes.
// StartConnection is passed through so callers get real connection IDs;
// everything else is buffered and flushed by a background goroutine.
type BufferedCollector struct {
	underlying  Collector
	interval    time.Duration
	maxBuffered int

	mu                   sync.Mutex
	completedConnections []completedConnectionData
	errors               []errorData
	dataTransfers        []dataTransferData
	dropped              int64

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewBufferedCollector creates a buffered collector with default settings
func NewBufferedCollector(underlying Collector) *BufferedCollector {
	return NewBufferedCollectorWithInterval(underlying, DefaultFlushInterval, DefaultMaxBuffered)
}

// NewBufferedCollectorWithInterval creates a buffered collector with a
// custom flush interval and buffer bound
func NewBufferedCollectorWithInterval(underlying Collector, interval time.Duration, maxBuffered int) *BufferedCollector {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}

	bc := &BufferedCollector{
		underlying:           underlying,
		interval:             interval,
		maxBuffered:          maxBuffered,
		completedConnections: make([]completedConnectionData, 0, maxBuffered),
		errors:               make([]errorData, 0, maxBuffered),
		dataTransfers:        make([]dataTransferData, 0, maxBuffered),
		stopChan:             make(chan struct{}),
	}

	bc.wg.Add(1)
	go bc.flusher()

	return bc
}

// flusher runs in the background and flushes buffered data periodically
func (b *BufferedCollector) flusher() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.stopChan:
			b.flush()
			return
		}
	}
}

// StartConnection records the start of a connection. The underlying
// collector assigns the ID, so this call is synchronous.
func (b *BufferedCollector) StartConnection(ctx context.Context, clientIP, targetHost string, targetPort int, protocol string) (int64, error) {
	return b.underlying.StartConnection(ctx, clientIP, targetHost, targetPort, protocol)
}

// EndConnection buffers the end of a connection
func (b *BufferedCollector) EndConnection(ctx context.Context, connectionID, bytesSent, bytesReceived int64, duration time.Duration, closeReason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.completedConnections) >= b.maxBuffered {
		b.dropped++
		return nil
	}

	b.completedConnections = append(b.completedConnections, completedConnectionData{
		connectionID:  connectionID,
		bytesSent:     bytesSent,
		bytesReceived: bytesReceived,
		duration:      duration,
		closeReason:   closeReason,
	})
	return nil
}

// RecordDataTransfer buffers a data transfer event
func (b *BufferedCollector) RecordDataTransfer(ctx context.Context, connectionID, bytesSent, bytesReceived int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.dataTransfers) >= b.maxBuffered {
		b.dropped++
		return nil
	}

	b.dataTransfers = append(b.dataTransfers, dataTransferData{
		connectionID:  connectionID,
		bytesSent:     bytesSent,
		bytesReceived: bytesReceived,
	})
	return nil
}

// RecordError buffers an error event
func (b *BufferedCollector) RecordError(ctx context.Context, connectionID int64, errorType, errorMessage string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.errors) >= b.maxBuffered {
		b.dropped++
		return nil
	}

	b.errors = append(b.errors, errorData{
		connectionID: connectionID,
		errorType:    errorType,
		errorMessage: errorMessage,
	})
	return nil
}

// GetOverviewStats delegates to the underlying collector
func (b *BufferedCollector) GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	return b.underlying.GetOverviewStats(ctx)
}

// HealthCheck checks if the underlying collector is healthy
func (b *BufferedCollector) HealthCheck(ctx context.Context) error {
	return b.underlying.HealthCheck(ctx)
}

// flush writes all buffered data to the underlying collector
func (b *BufferedCollector) flush() {
	b.mu.Lock()
	completed := b.completedConnections
	transfers := b.dataTransfers
	errs := b.errors
	dropped := b.dropped
	b.completedConnections = make([]completedConnectionData, 0, b.maxBuffered)
	b.dataTransfers = make([]dataTransferData, 0, b.maxBuffered)
	b.errors = make([]errorData, 0, b.maxBuffered)
	b.dropped = 0
	b.mu.Unlock()

	total := len(completed) + len(transfers) + len(errs)
	if total == 0 && dropped == 0 {
		return
	}

	logger.Debug("Flushing %d buffered stats events", total)
	if dropped > 0 {
		logger.Warn("Dropped %d stats events, buffers were full", dropped)
	}

	ctx := context.Background()

	for i := range transfers {
		dt := &transfers[i]
		if err := b.underlying.RecordDataTransfer(ctx, dt.connectionID, dt.bytesSent, dt.bytesReceived); err != nil {
			logger.Debug("Failed to flush data transfer: %v", err)
		}
	}

	for i := range completed {
		conn := &completed[i]
		if err := b.underlying.EndConnection(ctx, conn.connectionID, conn.bytesSent, conn.bytesReceived, conn.duration, conn.closeReason); err != nil {
			logger.Debug("Failed to flush connection end: %v", err)
		}
	}

	for i := range errs {
		e := &errs[i]
		if err := b.underlying.RecordError(ctx, e.connectionID, e.errorType, e.errorMessage); err != nil {
			logger.Debug("Failed to flush error record: %v", err)
		}
	}
}

// ForceFlush immediately flushes all buffered data
func (b *BufferedCollector) ForceFlush() {
	b.flush()
}

// Close stops the flusher, writes remaining data and closes the
// underlying collector
func (b *BufferedCollector) Close() error {
	close(b.stopChan)
	b.wg.Wait()
	return b.underlying.Close()
}
