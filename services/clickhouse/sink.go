// Package clickhouse is an optional export sink for finished bar tables.
// It is a downstream consumer of a run's output, never a pipeline stage:
// the core stays persistence-free.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"tickbars/services/tick"
)

type Config struct {
	Addr     string
	Database string
	Table    string
	User     string
	Password string
}

type Sink struct {
	conn   driver.Conn
	cfg    Config
	logger *zap.Logger
}

func NewSink(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9000"
	}
	if cfg.Database == "" {
		cfg.Database = "tickbars"
	}
	if cfg.Table == "" {
		cfg.Table = "bars"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Sink{conn: conn, cfg: cfg, logger: logger}, nil
}

// EnsureTable creates the target table. ReplacingMergeTree keyed on
// (symbol, timeframe, bucket_start) makes re-exports idempotent.
func (s *Sink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol       LowCardinality(String),
			timeframe    LowCardinality(String),
			bucket_start DateTime64(9, 'UTC'),
			open         Decimal128(9),
			high         Decimal128(9),
			low          Decimal128(9),
			close        Decimal128(9),
			volume       Int64,
			tick_count   UInt32,
			gap          UInt8,
			inserted_at  DateTime DEFAULT now()
		)
		ENGINE = ReplacingMergeTree(inserted_at)
		ORDER BY (symbol, timeframe, bucket_start)
	`, s.cfg.Database, s.cfg.Table)
	return s.conn.Exec(ctx, ddl)
}

// InsertBars batch-inserts one series. Decimal prices go over the native
// protocol as strings so ClickHouse parses them into Decimal128 without a
// float round-trip.
func (s *Sink) InsertBars(ctx context.Context, symbol, timeframe string, bars []tick.OHLCBar) error {
	if len(bars) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"INSERT INTO %s.%s (symbol, timeframe, bucket_start, open, high, low, close, volume, tick_count, gap) SETTINGS insert_deduplicate=1",
		s.cfg.Database, s.cfg.Table)
	batch, err := s.conn.PrepareBatch(ctx, strings.TrimSpace(query))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range bars {
		gap := uint8(0)
		if b.Gap {
			gap = 1
		}
		if err := batch.Append(
			symbol,
			timeframe,
			time.Unix(0, b.BucketStart).UTC(),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume,
			b.TickCount,
			gap,
		); err != nil {
			return fmt.Errorf("append bar %d: %w", b.BucketStart, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	s.logger.Info("bars exported",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("bars", len(bars)))
	return nil
}

func (s *Sink) Close() error { return s.conn.Close() }
