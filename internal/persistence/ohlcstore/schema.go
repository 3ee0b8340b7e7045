package ohlcstore

const postgresSchema = `
CREATE TABLE IF NOT EXISTS public.ohlc_bars (
    item         TEXT        NOT NULL,
    category     TEXT        NOT NULL,
    period       TEXT        NOT NULL,
    period_start BIGINT      NOT NULL,
    period_end   BIGINT      NOT NULL,
    open         NUMERIC     NOT NULL,
    high         NUMERIC     NOT NULL,
    low          NUMERIC     NOT NULL,
    close        NUMERIC     NOT NULL,
    sample_count INTEGER     NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (item, period, period_start)
);
CREATE INDEX IF NOT EXISTS ohlc_bars_category_idx ON public.ohlc_bars (category, period, period_start);`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS ohlc_bars (
		item         TEXT    NOT NULL,
		category     TEXT    NOT NULL,
		period       TEXT    NOT NULL,
		period_start INTEGER NOT NULL,
		period_end   INTEGER NOT NULL,
		open         TEXT    NOT NULL,
		high         TEXT    NOT NULL,
		low          TEXT    NOT NULL,
		close        TEXT    NOT NULL,
		sample_count INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		PRIMARY KEY (item, period, period_start)
	)`,
	`CREATE INDEX IF NOT EXISTS ohlc_bars_category_idx ON ohlc_bars (category, period, period_start)`,
}

const postgresUpsert = `
INSERT INTO public.ohlc_bars (
    item, category, period, period_start, period_end, open, high, low, close, sample_count, updated_at
)
SELECT t.item, t.category, t.period, t.period_start, t.period_end, t.open, t.high, t.low, t.close, t.sample_count, NOW()
FROM unnest(
    $1::text[], $2::text[], $3::text[], $4::bigint[], $5::bigint[],
    $6::numeric[], $7::numeric[], $8::numeric[], $9::numeric[], $10::integer[]
) AS t(item, category, period, period_start, period_end, open, high, low, close, sample_count)
ON CONFLICT (item, period, period_start) DO UPDATE SET
    category = EXCLUDED.category,
    period_end = EXCLUDED.period_end,
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    sample_count = EXCLUDED.sample_count,
    updated_at = NOW();`

const sqliteUpsert = `
INSERT INTO ohlc_bars (
    item, category, period, period_start, period_end, open, high, low, close, sample_count, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (item, period, period_start) DO UPDATE SET
    category = excluded.category,
    period_end = excluded.period_end,
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    sample_count = excluded.sample_count,
    updated_at = excluded.updated_at`

// selectBars uses $n placeholders; rebind rewrites them for SQLite.
const selectBars = `
SELECT item, category, period, period_start, period_end,
    %[1]s AS open, %[2]s AS high, %[3]s AS low, %[4]s AS close, sample_count
FROM %[5]s
WHERE (item = $1 OR category = $2)
    AND period_start >= $3 AND period_start < $4
    AND ($5 = '' OR period = $6)
ORDER BY period_start, item, period`
