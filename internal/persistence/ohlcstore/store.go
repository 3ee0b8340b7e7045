// Package ohlcstore persists closed OHLC bars in Postgres or SQLite through
// go-zero's sqlx.
package ohlcstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/najdi123/currency-sub003/pkg/market"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

// Dialect selects SQL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var _ ohlc.Store = (*Store)(nil)

// Store implements ohlc.Store on a SQL connection.
type Store struct {
	conn    sqlx.SqlConn
	dialect Dialect
}

// New wraps an existing connection.
func New(conn sqlx.SqlConn, dialect Dialect) *Store {
	return &Store{conn: conn, dialect: dialect}
}

// OpenPostgres connects through the pgx stdlib driver with the given pool
// limits.
func OpenPostgres(dsn string, maxOpen, maxIdle int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("ohlcstore: open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(sqlx.NewSqlConnFromDB(db), Postgres), nil
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ohlcstore: sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ohlcstore: open sqlite: %w", err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	return New(sqlx.NewSqlConnFromDB(db), SQLite), nil
}

// Migrate creates the bars table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{postgresSchema}
	if s.dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecCtx(ctx, stmt); err != nil {
			return fmt.Errorf("ohlcstore: migrate %s: %w", s.dialect, err)
		}
	}
	return nil
}

// SaveBars upserts bars keyed by (item, period, period_start).
func (s *Store) SaveBars(ctx context.Context, bars []ohlc.Bar) error {
	bars = dedupe(bars)
	if len(bars) == 0 {
		return nil
	}
	var err error
	if s.dialect == SQLite {
		err = s.saveSQLite(ctx, bars)
	} else {
		err = s.savePostgres(ctx, bars)
	}
	if err != nil {
		return fmt.Errorf("ohlcstore: save %d bars: %w", len(bars), err)
	}
	logx.WithContext(ctx).Infof("ohlcstore: saved %d bars", len(bars))
	return nil
}

func (s *Store) savePostgres(ctx context.Context, bars []ohlc.Bar) error {
	n := len(bars)
	var (
		items, categories, periods = make([]string, n), make([]string, n), make([]string, n)
		starts, ends               = make([]int64, n), make([]int64, n)
		opens, highs, lows, closes = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		counts                     = make([]int64, n)
	)
	for i, b := range bars {
		items[i], categories[i], periods[i] = b.Item, string(b.Category), string(b.Period)
		starts[i], ends[i] = b.PeriodStart.Unix(), b.PeriodEnd.Unix()
		opens[i], highs[i], lows[i], closes[i] = b.Open.String(), b.High.String(), b.Low.String(), b.Close.String()
		counts[i] = int64(b.SampleCount)
	}
	_, err := s.conn.ExecCtx(ctx, postgresUpsert,
		pq.Array(items), pq.Array(categories), pq.Array(periods),
		pq.Array(starts), pq.Array(ends),
		pq.Array(opens), pq.Array(highs), pq.Array(lows), pq.Array(closes),
		pq.Array(counts),
	)
	return err
}

func (s *Store) saveSQLite(ctx context.Context, bars []ohlc.Bar) error {
	now := time.Now().Unix()
	return s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, b := range bars {
			if _, err := session.ExecCtx(ctx, sqliteUpsert,
				b.Item, string(b.Category), string(b.Period),
				b.PeriodStart.Unix(), b.PeriodEnd.Unix(),
				b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
				b.SampleCount, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

type barRow struct {
	Item        string `db:"item"`
	Category    string `db:"category"`
	Period      string `db:"period"`
	PeriodStart int64  `db:"period_start"`
	PeriodEnd   int64  `db:"period_end"`
	Open        string `db:"open"`
	High        string `db:"high"`
	Low         string `db:"low"`
	Close       string `db:"close"`
	SampleCount int64  `db:"sample_count"`
}

// Bars implements ohlc.Store.
func (s *Store) Bars(ctx context.Context, q ohlc.Query) ([]ohlc.Bar, error) {
	query := s.selectQuery()
	var rows []barRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, query,
		q.Subject, q.Subject, q.From.Unix(), q.To.Unix(), string(q.Period), string(q.Period),
	); err != nil {
		return nil, fmt.Errorf("ohlcstore: query bars subject=%s: %w", q.Subject, err)
	}
	out := make([]ohlc.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := row.toBar()
		if err != nil {
			return nil, fmt.Errorf("ohlcstore: decode bar %s/%s: %w", row.Item, row.Period, err)
		}
		out = append(out, bar)
	}
	return out, nil
}

func (s *Store) selectQuery() string {
	if s.dialect == SQLite {
		return rebind(fmt.Sprintf(selectBars, "open", "high", "low", "close", "ohlc_bars"))
	}
	return fmt.Sprintf(selectBars, "open::text", "high::text", "low::text", "close::text", "public.ohlc_bars")
}

func (r barRow) toBar() (ohlc.Bar, error) {
	prices := make([]decimal.Decimal, 4)
	for i, raw := range []string{r.Open, r.High, r.Low, r.Close} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return ohlc.Bar{}, err
		}
		prices[i] = d
	}
	return ohlc.Bar{
		Item:        r.Item,
		Category:    market.Category(r.Category),
		Period:      ohlc.Period(r.Period),
		PeriodStart: time.Unix(r.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(r.PeriodEnd, 0).UTC(),
		Open:        prices[0],
		High:        prices[1],
		Low:         prices[2],
		Close:       prices[3],
		SampleCount: int(r.SampleCount),
	}, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

func rebind(query string) string {
	return placeholder.ReplaceAllString(query, "?")
}

// dedupe keeps the last bar per key so one batch never touches a row twice.
func dedupe(bars []ohlc.Bar) []ohlc.Bar {
	type key struct {
		item, period string
		start        int64
	}
	index := make(map[key]int, len(bars))
	out := make([]ohlc.Bar, 0, len(bars))
	for _, b := range bars {
		k := key{b.Item, string(b.Period), b.PeriodStart.Unix()}
		if i, ok := index[k]; ok {
			out[i] = b
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out
}
