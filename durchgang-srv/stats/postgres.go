package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/logger"
	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS connections (
	id BIGSERIAL PRIMARY KEY,
	client_ip TEXT NOT NULL,
	target_host TEXT NOT NULL,
	target_port INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	bytes_sent BIGINT NOT NULL DEFAULT 0,
	bytes_received BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	close_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS connection_errors (
	id BIGSERIAL PRIMARY KEY,
	connection_id BIGINT,
	error_type TEXT NOT NULL,
	error_message TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_connections_started_at ON connections(started_at);
CREATE INDEX IF NOT EXISTS idx_connection_errors_timestamp ON connection_errors(timestamp);
`

// PostgreSQLCollector implements Collector using PostgreSQL
type PostgreSQLCollector struct {
	db        *sql.DB
	startTime time.Time
}

// NewPostgreSQLCollector creates a new PostgreSQL-based stats collector
func NewPostgreSQLCollector(connectionString string) (*PostgreSQLCollector, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	collector := &PostgreSQLCollector{db: db, startTime: time.Now()}
	if err := collector.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized stats collector postgresql")

	return collector, nil
}

// initSchema creates the necessary tables if they don't exist
func (p *PostgreSQLCollector) initSchema() error {
	if _, err := p.db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	return nil
}

// StartConnection records the start of a connection
func (p *PostgreSQLCollector) StartConnection(ctx context.Context, clientIP, targetHost string, targetPort int, protocol string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO connections (client_ip, target_host, target_port, protocol, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		clientIP, targetHost, targetPort, protocol, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record connection start: %w", err)
	}
	return id, nil
}

// EndConnection records the end of a connection
func (p *PostgreSQLCollector) EndConnection(ctx context.Context, connectionID, bytesSent, bytesReceived int64, duration time.Duration, closeReason string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE connections
		 SET ended_at = $1, bytes_sent = $2, bytes_received = $3, duration_ms = $4, close_reason = $5
		 WHERE id = $6`,
		time.Now(), bytesSent, bytesReceived, duration.Milliseconds(), closeReason, connectionID)
	if err != nil {
		return fmt.Errorf("failed to record connection end: %w", err)
	}
	return nil
}

// RecordDataTransfer adds transferred bytes to an open connection
func (p *PostgreSQLCollector) RecordDataTransfer(ctx context.Context, connectionID, bytesSent, bytesReceived int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE connections
		 SET bytes_sent = bytes_sent + $1, bytes_received = bytes_received + $2
		 WHERE id = $3`,
		bytesSent, bytesReceived, connectionID)
	if err != nil {
		return fmt.Errorf("failed to record data transfer: %w", err)
	}
	return nil
}

// RecordError records an error for a connection
func (p *PostgreSQLCollector) RecordError(ctx context.Context, connectionID int64, errorType, errorMessage string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO connection_errors (connection_id, error_type, error_message, timestamp)
		 VALUES ($1, $2, $3, $4)`,
		connectionID, errorType, errorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// GetOverviewStats returns high-level statistics
func (p *PostgreSQLCollector) GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	stats := &OverviewStats{
		Uptime: time.Since(p.startTime).Round(time.Second).String(),
	}

	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN ended_at IS NULL THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(bytes_received), 0),
		        COALESCE(SUM(bytes_sent), 0)
		 FROM connections`).
		Scan(&stats.TotalConnections, &stats.ActiveConnections, &stats.TotalBytesIn, &stats.TotalBytesOut)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection stats: %w", err)
	}

	err = p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connection_errors`).Scan(&stats.TotalErrors)
	if err != nil {
		return nil, fmt.Errorf("failed to query error stats: %w", err)
	}

	return stats, nil
}

// HealthCheck verifies the database connection
func (p *PostgreSQLCollector) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgreSQLCollector) Close() error {
	return p.db.Close()
}
