package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pricing-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// timeLayout is fixed width so timestamps stored as TEXT sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// A single connection serializes writers so pragmas apply to every statement.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL,
	urls        TEXT NOT NULL,
	fx_rates    TEXT,
	status      TEXT NOT NULL DEFAULT 'queued',
	attempts    INTEGER NOT NULL DEFAULT 0,
	priority    INTEGER NOT NULL DEFAULT 0,
	retry_at    TEXT,
	last_error  TEXT,
	snapshot_id TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS competitor_snapshots (
	id                 TEXT PRIMARY KEY,
	product_id         TEXT NOT NULL,
	job_id             TEXT NOT NULL DEFAULT '',
	scraped_at         TEXT NOT NULL,
	scrape_latency_ms  INTEGER NOT NULL DEFAULT 0,
	competitors        TEXT NOT NULL DEFAULT '[]',
	stats              TEXT NOT NULL DEFAULT '{}',
	pricing_status     TEXT NOT NULL DEFAULT 'pending',
	pricing_insight_id TEXT,
	last_error         TEXT,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pricing_insights (
	id                TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL,
	snapshot_id       TEXT NOT NULL REFERENCES competitor_snapshots(id),
	strategy_source   TEXT NOT NULL,
	recommended_price REAL NOT NULL,
	price_band        TEXT NOT NULL,
	expected_margin   REAL NOT NULL,
	rationale         TEXT NOT NULL,
	data_sources      TEXT NOT NULL DEFAULT '[]',
	fallback_reason   TEXT,
	metadata          TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs(status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_pending ON competitor_snapshots(pricing_status, scraped_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_product ON competitor_snapshots(product_id, scraped_at);
CREATE INDEX IF NOT EXISTS idx_insights_product ON pricing_insights(product_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_snapshot ON pricing_insights(snapshot_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Products ---

func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var doc, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at, updated_at FROM products WHERE id = ?`,
		productID,
	).Scan(&doc, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get product %s", productID)
	}

	var p model.Product
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal product")
	}
	p.ID = productID
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (s *SQLiteStore) UpsertProducts(ctx context.Context, products []model.Product) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert products: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, p := range products {
		if p.ID == "" {
			return 0, eris.New("sqlite: upsert products: product id is required")
		}
		doc, err := json.Marshal(p)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal product %s", p.ID)
		}
		created := p.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO products (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
			p.ID, string(doc), formatTime(created), formatTime(now),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert product %s", p.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert products: commit tx")
	}
	return len(products), nil
}

func (s *SQLiteStore) UpdateProductPrice(ctx context.Context, productID string, price float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET doc = json_set(doc, '$.pricing.sellingPrice', ?), updated_at = ? WHERE id = ?`,
		price, formatTime(time.Now().UTC()), productID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product price %s", productID)
	}
	return checkRowsAffected(res, ErrNotFound, "product", productID)
}

// --- Scrape jobs ---

func (s *SQLiteStore) CreateScrapeJob(ctx context.Context, job *model.ScrapeJob) error {
	prepareJob(job)

	urlsJSON, err := json.Marshal(job.URLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job urls")
	}
	var fxJSON *string
	if job.FXRates != nil {
		data, err := json.Marshal(job.FXRates)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fx rates")
		}
		fx := string(data)
		fxJSON = &fx
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProductID, string(urlsJSON), fxJSON, string(job.Status), job.Attempts, job.Priority,
		formatTimePtr(job.RetryAt), job.LastError, job.SnapshotID, formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert scrape job %s", job.ID)
}

func (s *SQLiteStore) GetScrapeJob(ctx context.Context, jobID string) (*model.ScrapeJob, error) {
	var j model.ScrapeJob
	var urlsJSON string
	var fxJSON, retryAt sql.NullString
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scrape_jobs WHERE id = ?`,
		jobID,
	).Scan(&j.ID, &j.ProductID, &urlsJSON, &fxJSON, &j.Status, &j.Attempts, &j.Priority,
		&retryAt, &j.LastError, &j.SnapshotID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get scrape job %s", jobID)
	}
	if err := json.Unmarshal([]byte(urlsJSON), &j.URLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job urls")
	}
	if fxJSON.Valid {
		if err := json.Unmarshal([]byte(fxJSON.String), &j.FXRates); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fx rates")
		}
	}
	if retryAt.Valid {
		t := parseTime(retryAt.String)
		j.RetryAt = &t
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

// --- Snapshots ---

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snap *model.CompetitorSnapshot) error {
	prepareSnapshot(snap)

	competitorsJSON, statsJSON, err := marshalSnapshotDocs(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO competitor_snapshots (`+snapshotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.ProductID, snap.JobID, formatTime(snap.ScrapedAt), snap.ScrapeLatencyMs,
		string(competitorsJSON), string(statsJSON), string(snap.PricingStatus), snap.PricingInsightID,
		snap.LastError, formatTime(snap.CreatedAt), formatTime(snap.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert snapshot %s", snap.ID)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, snapshotID string) (*model.CompetitorSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM competitor_snapshots WHERE id = ?`,
		snapshotID,
	)
	snap, err := scanSQLiteSnapshot(row)
	return snap, eris.Wrapf(err, "sqlite: get snapshot %s", snapshotID)
}

func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context, productID string) (*model.CompetitorSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM competitor_snapshots
		 WHERE product_id = ? ORDER BY scraped_at DESC LIMIT 1`,
		productID,
	)
	snap, err := scanSQLiteSnapshot(row)
	return snap, eris.Wrapf(err, "sqlite: get latest snapshot for %s", productID)
}

// ClaimNextPendingSnapshot selects the oldest pending snapshot and moves it to
// processing with a guarded update. Losing the race to another claimer is
// reported as no work.
func (s *SQLiteStore) ClaimNextPendingSnapshot(ctx context.Context) (*model.CompetitorSnapshot, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM competitor_snapshots WHERE pricing_status = 'pending'
		 ORDER BY scraped_at ASC LIMIT 1`,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: select pending snapshot")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE competitor_snapshots SET pricing_status = 'processing', updated_at = ?
		 WHERE id = ? AND pricing_status = 'pending'`,
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim snapshot %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim snapshot rows affected")
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetSnapshot(ctx, id)
}

func (s *SQLiteStore) FailSnapshot(ctx context.Context, snapshotID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE competitor_snapshots SET pricing_status = 'failed', last_error = ?, updated_at = ?
		 WHERE id = ? AND pricing_status = 'processing'`,
		reason, formatTime(time.Now().UTC()), snapshotID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail snapshot %s", snapshotID)
	}
	return checkRowsAffected(res, ErrStaleStatus, "snapshot", snapshotID)
}

// CompleteSnapshot inserts the insight and marks its snapshot completed in
// one transaction.
func (s *SQLiteStore) CompleteSnapshot(ctx context.Context, insight *model.PricingInsight) error {
	bandJSON, sourcesJSON, metaJSON, err := marshalInsightDocs(insight)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insight")
	}
	var meta *string
	if metaJSON != nil {
		m := string(metaJSON)
		meta = &m
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete snapshot: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pricing_insights (`+insightColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insight.ID, insight.ProductID, insight.SnapshotID, string(insight.StrategySource), insight.RecommendedPrice,
		string(bandJSON), insight.ExpectedMargin, insight.Rationale, string(sourcesJSON), insight.FallbackReason, meta,
		formatTime(insight.CreatedAt), formatTime(insight.UpdatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert insight %s", insight.ID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE competitor_snapshots SET pricing_status = 'completed', pricing_insight_id = ?, updated_at = ?
		 WHERE id = ? AND pricing_status = 'processing'`,
		insight.ID, formatTime(time.Now().UTC()), insight.SnapshotID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete snapshot %s", insight.SnapshotID)
	}
	if err := checkRowsAffected(res, ErrStaleStatus, "snapshot", insight.SnapshotID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: complete snapshot: commit tx")
}

// --- Insights ---

func (s *SQLiteStore) GetLatestInsight(ctx context.Context, productID string) (*model.PricingInsight, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+insightColumns+` FROM pricing_insights
		 WHERE product_id = ? ORDER BY created_at DESC LIMIT 1`,
		productID,
	)
	ins, err := scanSQLiteInsight(row)
	return ins, eris.Wrapf(err, "sqlite: get latest insight for %s", productID)
}

func (s *SQLiteStore) ListInsightsBySnapshot(ctx context.Context, snapshotID string) ([]model.PricingInsight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+insightColumns+` FROM pricing_insights
		 WHERE snapshot_id = ? ORDER BY created_at ASC`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list insights")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PricingInsight
	for rows.Next() {
		ins, err := scanSQLiteInsight(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan insight")
		}
		out = append(out, *ins)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list insights iterate")
}

// --- Monitoring ---

func (s *SQLiteStore) QueueStats(ctx context.Context) (*QueueStats, error) {
	stats := newQueueStats()

	if err := s.countBy(ctx, `SELECT pricing_status, count(*) FROM competitor_snapshots GROUP BY pricing_status`,
		func(k string, n int) { stats.SnapshotsByStatus[model.PricingStatus(k)] = n }); err != nil {
		return nil, eris.Wrap(err, "sqlite: count snapshots")
	}
	if err := s.countBy(ctx, `SELECT status, count(*) FROM scrape_jobs GROUP BY status`,
		func(k string, n int) { stats.JobsByStatus[model.JobStatus(k)] = n }); err != nil {
		return nil, eris.Wrap(err, "sqlite: count jobs")
	}
	if err := s.countBy(ctx, `SELECT strategy_source, count(*) FROM pricing_insights GROUP BY strategy_source`,
		func(k string, n int) { stats.InsightsBySource[model.StrategySource(k)] = n }); err != nil {
		return nil, eris.Wrap(err, "sqlite: count insights")
	}

	var oldest sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT min(scraped_at) FROM competitor_snapshots WHERE pricing_status = 'pending'`,
	).Scan(&oldest); err != nil {
		return nil, eris.Wrap(err, "sqlite: oldest pending")
	}
	if oldest.Valid {
		t := parseTime(oldest.String)
		stats.OldestPendingAt = &t
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products`).Scan(&stats.Products); err != nil {
		return nil, eris.Wrap(err, "sqlite: count products")
	}
	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, query string, set func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		set(key, n)
	}
	return rows.Err()
}

// --- helpers ---

func checkRowsAffected(res sql.Result, sentinel error, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(sentinel, "sqlite: %s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSnapshot(row scannable) (*model.CompetitorSnapshot, error) {
	var snap model.CompetitorSnapshot
	var scrapedAt, createdAt, updatedAt, competitorsJSON, statsJSON string
	err := row.Scan(&snap.ID, &snap.ProductID, &snap.JobID, &scrapedAt, &snap.ScrapeLatencyMs,
		&competitorsJSON, &statsJSON, &snap.PricingStatus, &snap.PricingInsightID, &snap.LastError,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalSnapshotDocs(&snap, []byte(competitorsJSON), []byte(statsJSON)); err != nil {
		return nil, err
	}
	snap.ScrapedAt = parseTime(scrapedAt)
	snap.CreatedAt = parseTime(createdAt)
	snap.UpdatedAt = parseTime(updatedAt)
	return &snap, nil
}

func scanSQLiteInsight(row scannable) (*model.PricingInsight, error) {
	var ins model.PricingInsight
	var bandJSON, sourcesJSON, createdAt, updatedAt string
	var metaJSON sql.NullString
	err := row.Scan(&ins.ID, &ins.ProductID, &ins.SnapshotID, &ins.StrategySource, &ins.RecommendedPrice,
		&bandJSON, &ins.ExpectedMargin, &ins.Rationale, &sourcesJSON, &ins.FallbackReason, &metaJSON,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var meta []byte
	if metaJSON.Valid {
		meta = []byte(metaJSON.String)
	}
	if err := unmarshalInsightDocs(&ins, []byte(bandJSON), []byte(sourcesJSON), meta); err != nil {
		return nil, err
	}
	ins.CreatedAt = parseTime(createdAt)
	ins.UpdatedAt = parseTime(updatedAt)
	return &ins, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}
