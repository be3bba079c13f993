package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/db"
	"github.com/sells-group/pricing-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const snapshotColumns = `id, product_id, job_id, scraped_at, scrape_latency_ms, competitors, stats,
	pricing_status, pricing_insight_id, last_error, created_at, updated_at`

const insightColumns = `id, product_id, snapshot_id, strategy_source, recommended_price, price_band,
	expected_margin, rationale, data_sources, fallback_reason, metadata, created_at, updated_at`

const jobColumns = `id, product_id, urls, fx_rates, status, attempts, priority, retry_at, last_error,
	snapshot_id, created_at, updated_at`

// preparedStatements lists the worker's hot-path queries, prepared on each
// new connection.
var preparedStatements = map[string]string{
	"claim_next_snapshot": claimSnapshotSQL,
	"get_product":         `SELECT doc, created_at, updated_at FROM products WHERE id = $1`,
	"fail_snapshot":       failSnapshotSQL,
	"complete_snapshot":   completeSnapshotSQL,
}

const claimSnapshotSQL = `UPDATE competitor_snapshots SET pricing_status = 'processing', updated_at = $1
	WHERE id = (
		SELECT id FROM competitor_snapshots
		WHERE pricing_status = 'pending'
		ORDER BY scraped_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + snapshotColumns

const failSnapshotSQL = `UPDATE competitor_snapshots SET pricing_status = 'failed', last_error = $1, updated_at = $2
	WHERE id = $3 AND pricing_status = 'processing'`

const completeSnapshotSQL = `UPDATE competitor_snapshots SET pricing_status = 'completed', pricing_insight_id = $1, updated_at = $2
	WHERE id = $3 AND pricing_status = 'processing'`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id  TEXT NOT NULL,
	urls        JSONB NOT NULL,
	fx_rates    JSONB,
	status      TEXT NOT NULL DEFAULT 'queued',
	attempts    INTEGER NOT NULL DEFAULT 0,
	priority    INTEGER NOT NULL DEFAULT 0,
	retry_at    TIMESTAMPTZ,
	last_error  TEXT,
	snapshot_id TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitor_snapshots (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id         TEXT NOT NULL,
	job_id             TEXT NOT NULL DEFAULT '',
	scraped_at         TIMESTAMPTZ NOT NULL,
	scrape_latency_ms  BIGINT NOT NULL DEFAULT 0,
	competitors        JSONB NOT NULL DEFAULT '[]',
	stats              JSONB NOT NULL DEFAULT '{}',
	pricing_status     TEXT NOT NULL DEFAULT 'pending',
	pricing_insight_id TEXT,
	last_error         TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pricing_insights (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id        TEXT NOT NULL,
	snapshot_id       TEXT NOT NULL REFERENCES competitor_snapshots(id),
	strategy_source   TEXT NOT NULL,
	recommended_price DOUBLE PRECISION NOT NULL,
	price_band        JSONB NOT NULL,
	expected_margin   DOUBLE PRECISION NOT NULL,
	rationale         TEXT NOT NULL,
	data_sources      JSONB NOT NULL DEFAULT '[]',
	fallback_reason   TEXT,
	metadata          JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs(status, priority DESC, created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_pending ON competitor_snapshots(pricing_status, scraped_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_product ON competitor_snapshots(product_id, scraped_at DESC);
CREATE INDEX IF NOT EXISTS idx_insights_product ON pricing_insights(product_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_insights_snapshot ON pricing_insights(snapshot_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Products ---

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var doc []byte
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at, updated_at FROM products WHERE id = $1`,
		productID,
	).Scan(&doc, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", productID)
	}
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal product")
	}
	p.ID = productID
	return &p, nil
}

func (s *PostgresStore) UpsertProducts(ctx context.Context, products []model.Product) (int, error) {
	now := time.Now().UTC()
	docs := make([]db.Document, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			return 0, eris.New("postgres: upsert products: product id is required")
		}
		body, err := json.Marshal(p)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal product %s", p.ID)
		}
		created := p.CreatedAt
		if created.IsZero() {
			created = now
		}
		docs = append(docs, db.Document{ID: p.ID, Body: body, CreatedAt: created, UpdatedAt: now})
	}

	n, err := db.UpsertDocuments(ctx, s.pool, "products", docs)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert products")
	}
	return int(n), nil
}

func (s *PostgresStore) UpdateProductPrice(ctx context.Context, productID string, price float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products
		 SET doc = jsonb_set(doc, '{pricing,sellingPrice}', to_jsonb($1::float8), true), updated_at = $2
		 WHERE id = $3`,
		price, time.Now().UTC(), productID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product price %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: product %s", productID)
	}
	return nil
}

// --- Scrape jobs ---

func (s *PostgresStore) CreateScrapeJob(ctx context.Context, job *model.ScrapeJob) error {
	prepareJob(job)

	urlsJSON, err := json.Marshal(job.URLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job urls")
	}
	var fxJSON []byte
	if job.FXRates != nil {
		if fxJSON, err = json.Marshal(job.FXRates); err != nil {
			return eris.Wrap(err, "postgres: marshal fx rates")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.ProductID, urlsJSON, fxJSON, string(job.Status), job.Attempts, job.Priority,
		job.RetryAt, job.LastError, job.SnapshotID, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert scrape job %s", job.ID)
}

func (s *PostgresStore) GetScrapeJob(ctx context.Context, jobID string) (*model.ScrapeJob, error) {
	var j model.ScrapeJob
	var urlsJSON, fxJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.ProductID, &urlsJSON, &fxJSON, &j.Status, &j.Attempts, &j.Priority,
		&j.RetryAt, &j.LastError, &j.SnapshotID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get scrape job %s", jobID)
	}
	if err := json.Unmarshal(urlsJSON, &j.URLs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job urls")
	}
	if len(fxJSON) > 0 {
		if err := json.Unmarshal(fxJSON, &j.FXRates); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fx rates")
		}
	}
	return &j, nil
}

// --- Snapshots ---

func (s *PostgresStore) CreateSnapshot(ctx context.Context, snap *model.CompetitorSnapshot) error {
	prepareSnapshot(snap)

	competitorsJSON, statsJSON, err := marshalSnapshotDocs(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO competitor_snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		snap.ID, snap.ProductID, snap.JobID, snap.ScrapedAt, snap.ScrapeLatencyMs, competitorsJSON, statsJSON,
		string(snap.PricingStatus), snap.PricingInsightID, snap.LastError, snap.CreatedAt, snap.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert snapshot %s", snap.ID)
}

// BulkInsertSnapshots loads many snapshots with COPY. Used by imports.
func (s *PostgresStore) BulkInsertSnapshots(ctx context.Context, snaps []model.CompetitorSnapshot) (int64, error) {
	rows := make([][]any, 0, len(snaps))
	for i := range snaps {
		snap := &snaps[i]
		prepareSnapshot(snap)
		competitorsJSON, statsJSON, err := marshalSnapshotDocs(snap)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal snapshot")
		}
		rows = append(rows, []any{
			snap.ID, snap.ProductID, snap.JobID, snap.ScrapedAt, snap.ScrapeLatencyMs, competitorsJSON, statsJSON,
			string(snap.PricingStatus), snap.PricingInsightID, snap.LastError, snap.CreatedAt, snap.UpdatedAt,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "competitor_snapshots", []string{
		"id", "product_id", "job_id", "scraped_at", "scrape_latency_ms", "competitors", "stats",
		"pricing_status", "pricing_insight_id", "last_error", "created_at", "updated_at",
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk insert snapshots")
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, snapshotID string) (*model.CompetitorSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM competitor_snapshots WHERE id = $1`,
		snapshotID,
	)
	snap, err := scanPgSnapshot(row)
	return snap, eris.Wrapf(err, "postgres: get snapshot %s", snapshotID)
}

func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, productID string) (*model.CompetitorSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM competitor_snapshots
		 WHERE product_id = $1 ORDER BY scraped_at DESC LIMIT 1`,
		productID,
	)
	snap, err := scanPgSnapshot(row)
	return snap, eris.Wrapf(err, "postgres: get latest snapshot for %s", productID)
}

// ClaimNextPendingSnapshot moves the oldest pending snapshot to processing
// in a single statement. Concurrent workers skip rows locked by each other.
func (s *PostgresStore) ClaimNextPendingSnapshot(ctx context.Context) (*model.CompetitorSnapshot, error) {
	row := s.pool.QueryRow(ctx, claimSnapshotSQL, time.Now().UTC())
	snap, err := scanPgSnapshot(row)
	return snap, eris.Wrap(err, "postgres: claim snapshot")
}

func (s *PostgresStore) FailSnapshot(ctx context.Context, snapshotID, reason string) error {
	tag, err := s.pool.Exec(ctx, failSnapshotSQL, reason, time.Now().UTC(), snapshotID)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail snapshot %s", snapshotID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleStatus, "postgres: fail snapshot %s", snapshotID)
	}
	return nil
}

// CompleteSnapshot inserts the insight and marks its snapshot completed in
// one transaction.
func (s *PostgresStore) CompleteSnapshot(ctx context.Context, insight *model.PricingInsight) error {
	bandJSON, sourcesJSON, metaJSON, err := marshalInsightDocs(insight)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insight")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: complete snapshot: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO pricing_insights (`+insightColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		insight.ID, insight.ProductID, insight.SnapshotID, string(insight.StrategySource), insight.RecommendedPrice,
		bandJSON, insight.ExpectedMargin, insight.Rationale, sourcesJSON, insight.FallbackReason, metaJSON,
		insight.CreatedAt, insight.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert insight %s", insight.ID)
	}

	tag, err := tx.Exec(ctx, completeSnapshotSQL, insight.ID, time.Now().UTC(), insight.SnapshotID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete snapshot %s", insight.SnapshotID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleStatus, "postgres: complete snapshot %s", insight.SnapshotID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: complete snapshot: commit tx")
}

// --- Insights ---

func (s *PostgresStore) GetLatestInsight(ctx context.Context, productID string) (*model.PricingInsight, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+insightColumns+` FROM pricing_insights
		 WHERE product_id = $1 ORDER BY created_at DESC LIMIT 1`,
		productID,
	)
	ins, err := scanPgInsight(row)
	return ins, eris.Wrapf(err, "postgres: get latest insight for %s", productID)
}

func (s *PostgresStore) ListInsightsBySnapshot(ctx context.Context, snapshotID string) ([]model.PricingInsight, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+insightColumns+` FROM pricing_insights
		 WHERE snapshot_id = $1 ORDER BY created_at ASC`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list insights")
	}
	defer rows.Close()

	var out []model.PricingInsight
	for rows.Next() {
		ins, err := scanPgInsight(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan insight")
		}
		out = append(out, *ins)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list insights iterate")
}

// --- Monitoring ---

func (s *PostgresStore) QueueStats(ctx context.Context) (*QueueStats, error) {
	stats := newQueueStats()

	if err := s.countBy(ctx, `SELECT pricing_status, count(*) FROM competitor_snapshots GROUP BY pricing_status`,
		func(k string, n int) { stats.SnapshotsByStatus[model.PricingStatus(k)] = n }); err != nil {
		return nil, eris.Wrap(err, "postgres: count snapshots")
	}
	if err := s.countBy(ctx, `SELECT status, count(*) FROM scrape_jobs GROUP BY status`,
		func(k string, n int) { stats.JobsByStatus[model.JobStatus(k)] = n }); err != nil {
		return nil, eris.Wrap(err, "postgres: count jobs")
	}
	if err := s.countBy(ctx, `SELECT strategy_source, count(*) FROM pricing_insights GROUP BY strategy_source`,
		func(k string, n int) { stats.InsightsBySource[model.StrategySource(k)] = n }); err != nil {
		return nil, eris.Wrap(err, "postgres: count insights")
	}

	err := s.pool.QueryRow(ctx,
		`SELECT min(scraped_at) FROM competitor_snapshots WHERE pricing_status = 'pending'`,
	).Scan(&stats.OldestPendingAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: oldest pending")
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&stats.Products); err != nil {
		return nil, eris.Wrap(err, "postgres: count products")
	}
	return stats, nil
}

func (s *PostgresStore) countBy(ctx context.Context, query string, set func(string, int)) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
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

// --- scanning ---

func scanPgSnapshot(row pgx.Row) (*model.CompetitorSnapshot, error) {
	var snap model.CompetitorSnapshot
	var competitorsJSON, statsJSON []byte
	err := row.Scan(&snap.ID, &snap.ProductID, &snap.JobID, &snap.ScrapedAt, &snap.ScrapeLatencyMs,
		&competitorsJSON, &statsJSON, &snap.PricingStatus, &snap.PricingInsightID, &snap.LastError,
		&snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalSnapshotDocs(&snap, competitorsJSON, statsJSON); err != nil {
		return nil, err
	}
	return &snap, nil
}

func scanPgInsight(row pgx.Row) (*model.PricingInsight, error) {
	var ins model.PricingInsight
	var bandJSON, sourcesJSON, metaJSON []byte
	err := row.Scan(&ins.ID, &ins.ProductID, &ins.SnapshotID, &ins.StrategySource, &ins.RecommendedPrice,
		&bandJSON, &ins.ExpectedMargin, &ins.Rationale, &sourcesJSON, &ins.FallbackReason, &metaJSON,
		&ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalInsightDocs(&ins, bandJSON, sourcesJSON, metaJSON); err != nil {
		return nil, err
	}
	return &ins, nil
}

// --- shared document helpers ---

func prepareJob(job *model.ScrapeJob) {
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
}

func prepareSnapshot(snap *model.CompetitorSnapshot) {
	now := time.Now().UTC()
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.PricingStatus == "" {
		snap.PricingStatus = model.PricingStatusPending
	}
	if snap.ScrapedAt.IsZero() {
		snap.ScrapedAt = now
	}
	snap.ScrapedAt = snap.ScrapedAt.UTC()
	if snap.Stats.Domains == nil {
		snap.Stats = snap.ComputeStats()
	}
	if snap.Competitors == nil {
		snap.Competitors = []model.CompetitorEntry{}
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
}

func marshalSnapshotDocs(snap *model.CompetitorSnapshot) (competitors, stats []byte, err error) {
	if competitors, err = json.Marshal(snap.Competitors); err != nil {
		return nil, nil, err
	}
	if stats, err = json.Marshal(snap.Stats); err != nil {
		return nil, nil, err
	}
	return competitors, stats, nil
}

func unmarshalSnapshotDocs(snap *model.CompetitorSnapshot, competitors, stats []byte) error {
	if len(competitors) > 0 {
		if err := json.Unmarshal(competitors, &snap.Competitors); err != nil {
			return eris.Wrap(err, "unmarshal competitors")
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &snap.Stats); err != nil {
			return eris.Wrap(err, "unmarshal stats")
		}
	}
	return nil
}

func marshalInsightDocs(ins *model.PricingInsight) (band, sources, meta []byte, err error) {
	if band, err = json.Marshal(ins.PriceBand); err != nil {
		return nil, nil, nil, err
	}
	dataSources := ins.DataSources
	if dataSources == nil {
		dataSources = []string{}
	}
	if sources, err = json.Marshal(dataSources); err != nil {
		return nil, nil, nil, err
	}
	if ins.Metadata != nil {
		if meta, err = json.Marshal(ins.Metadata); err != nil {
			return nil, nil, nil, err
		}
	}
	return band, sources, meta, nil
}

func unmarshalInsightDocs(ins *model.PricingInsight, band, sources, meta []byte) error {
	if err := json.Unmarshal(band, &ins.PriceBand); err != nil {
		return eris.Wrap(err, "unmarshal price band")
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &ins.DataSources); err != nil {
			return eris.Wrap(err, "unmarshal data sources")
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ins.Metadata); err != nil {
			return eris.Wrap(err, "unmarshal metadata")
		}
	}
	return nil
}
