package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StratLab/internal/domain/models"
	pkgch "StratLab/pkg/clickhouse"
	applogger "StratLab/pkg/logger"
)

// CHBarStore implements BarStore over a ClickHouse minute-bar table.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, table string) *CHBarStore {
	if table == "" {
		table = "bars_1m"
	}
	return &CHBarStore{db: ch.DB(), table: table, l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// BarsSchema is the DDL of the bar table. Indicator columns default to 0,
// which the scanner treats as "recompute from prices".
func BarsSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ts DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64,
    vwap Float64 DEFAULT 0,
    ema9 Float64 DEFAULT 0,
    ema20 Float64 DEFAULT 0,
    ema50 Float64 DEFAULT 0,
    avg_volume_20 Float64 DEFAULT 0
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, ts)`, table)
}

// GetBars returns bars in [from, to] ordered by time.
func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, symbol, open, high, low, close, volume, vwap, ema9, ema20, ema50, avg_volume_20
        FROM %s FINAL
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 1024)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.VWAP, &b.EMA9, &b.EMA20, &b.EMA50, &b.AvgVolume20); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_bars ok",
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// InsertBars loads bars in chunks, used by the CLI import and test fixtures.
func (s *CHBarStore) InsertBars(ctx context.Context, bars []models.Bar) error {
	const chunkSize = 2000
	for lo := 0; lo < len(bars); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(bars) {
			hi = len(bars)
		}
		q, args := multiRowInsert(s.table,
			[]string{"ts", "symbol", "open", "high", "low", "close", "volume", "vwap", "ema9", "ema20", "ema50", "avg_volume_20"},
			hi-lo,
			func(i int) []interface{} {
				b := bars[lo+i]
				return []interface{}{b.Timestamp.UTC(), b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume,
					b.VWAP, b.EMA9, b.EMA20, b.EMA50, b.AvgVolume20}
			})
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}
