package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anshul202/derivative-api/internal/domain/models"
	domrepo "github.com/anshul202/derivative-api/internal/domain/repository"
	pkgch "github.com/anshul202/derivative-api/pkg/clickhouse"
	applogger "github.com/anshul202/derivative-api/pkg/logger"
)

// ClickHousePriceHistory implements PriceHistory backed by ClickHouse.
type ClickHousePriceHistory struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewClickHousePriceHistory creates a ClickHouse price history repository.
func NewClickHousePriceHistory(ch *pkgch.Client, table string) domrepo.PriceHistory {
	return &ClickHousePriceHistory{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *ClickHousePriceHistory) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHousePriceHistory) Init(ctx context.Context) error {
	// ReplacingMergeTree folds repeated writes of the same observation, which
	// happen whenever the upstream feed serves a cached quote.
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
        (ts DateTime, price Float64, source LowCardinality(String))
        ENGINE = ReplacingMergeTree ORDER BY ts`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init price history: %w", err)
	}
	return nil
}

// Recent returns up to limit observations in chronological order. The GROUP
// BY collapses duplicates the table engine has not merged yet; the series
// builder requires strictly increasing timestamps.
func (s *ClickHousePriceHistory) Recent(ctx context.Context, limit int) ([]models.HistoryPoint, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT ts, any(price) FROM %s GROUP BY ts ORDER BY ts DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse recent prices query error",
				applogger.String("table", s.table),
				applogger.Int("limit", limit),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("recent prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoryPoint, 0, limit)
	for rows.Next() {
		var p models.HistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if s.l != nil {
		s.l.Debug("clickhouse recent prices ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *ClickHousePriceHistory) Append(ctx context.Context, points []models.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	values := make([]string, 0, len(points))
	args := make([]interface{}, 0, len(points)*3)
	for _, p := range points {
		if p.Timestamp.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?)")
		args = append(args, p.Timestamp, p.Price, "iex")
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, price, source) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("append prices: %w", err)
	}
	return nil
}

func (s *ClickHousePriceHistory) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHousePriceHistory) Close() error {
	return nil // Managed by pkg
}
