// Package audit writes a best-effort record of each built or dropped
// frame to ClickHouse, the concrete mechanism by which operators monitor
// the repeated failures the error-handling design calls out as
// unrate-limited. It never sits on the hot path: a failed audit write is
// logged and discarded, never propagated back to the builder.
package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/jlab-daq/e2sar-framebuilder/internal/config"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp     DateTime,
    Shard         UInt32,
    FrameTs       UInt64,
    SliceCount    UInt32,
    BuiltClean    UInt8,
    TimestampErr  UInt8,
    ByteCount     UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Shard, Timestamp);
`

// Trail writes one row per built (or dropped) frame to the configured
// frame_audit table.
type Trail struct {
	conn  driver.Conn
	table string
}

// NewTrail connects to ClickHouse and ensures the audit table exists.
func NewTrail(cfg config.ClickHouseConfig) (*Trail, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "frame_audit"
	}
	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, table)); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	log.Println("audit: connected to clickhouse and ensured frame_audit table exists")

	return &Trail{conn: conn, table: table}, nil
}

// Record appends one row describing a built or dropped frame. Errors are
// logged, never returned as fatal: a degraded audit trail must never
// interrupt frame emission.
func (t *Trail) Record(shard int, frameTs uint64, sliceCount int, builtClean, timestampErr bool, byteCount int) {
	batch, err := t.conn.PrepareBatch(context.Background(), "INSERT INTO "+t.table)
	if err != nil {
		log.Printf("audit: failed to prepare batch: %v", err)
		return
	}

	err = batch.Append(
		time.Now(),
		uint32(shard),
		frameTs,
		uint32(sliceCount),
		boolToU8(builtClean),
		boolToU8(timestampErr),
		uint64(byteCount),
	)
	if err != nil {
		log.Printf("audit: failed to append row: %v", err)
		return
	}

	if err := batch.Send(); err != nil {
		log.Printf("audit: failed to send batch: %v", err)
	}
}

// Close closes the underlying ClickHouse connection.
func (t *Trail) Close() error {
	return t.conn.Close()
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
