package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Document is one row of a JSONB document table: a text id, the document
// body and its timestamps.
type Document struct {
	ID        string
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

var documentColumns = []string{"id", "doc", "created_at", "updated_at"}

// UpsertDocuments writes docs into a document table (id TEXT PRIMARY KEY,
// doc JSONB, created_at, updated_at). Rows are staged with COPY and merged
// with INSERT ... ON CONFLICT:
//   - created_at of an existing row is kept;
//   - a row whose body is unchanged is not rewritten, so updated_at only
//     moves when the document does.
//
// Duplicate ids within docs collapse to the last one. Returns the number of
// rows inserted or changed.
func UpsertDocuments(ctx context.Context, pool Pool, table string, docs []Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	rows, err := documentRows(docs)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s", table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin tx", table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	target := pgx.Identifier{table}.Sanitize()
	staging := pgx.Identifier{"_stage_" + table}

	_, err = tx.Exec(ctx, fmt.Sprintf(
		`CREATE TEMP TABLE %s (id TEXT, doc JSONB, created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ) ON COMMIT DROP`,
		staging.Sanitize(),
	))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", table)
	}

	if _, err := tx.CopyFrom(ctx, staging, documentColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: COPY into staging table", table)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %[1]s AS t (id, doc, created_at, updated_at)
		 SELECT id, doc, created_at, updated_at FROM %[2]s
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
		 WHERE t.doc IS DISTINCT FROM EXCLUDED.doc`,
		target, staging.Sanitize(),
	))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit tx", table)
	}
	return tag.RowsAffected(), nil
}

// documentRows validates docs and turns them into COPY rows, keeping the
// last document for each id in first-seen order. ON CONFLICT cannot touch
// the same row twice in one statement.
func documentRows(docs []Document) ([][]any, error) {
	index := make(map[string]int, len(docs))
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return nil, eris.New("document id is required")
		}
		if len(d.Body) == 0 {
			return nil, eris.Errorf("document %s has an empty body", d.ID)
		}
		row := []any{d.ID, d.Body, d.CreatedAt.UTC(), d.UpdatedAt.UTC()}
		if i, ok := index[d.ID]; ok {
			rows[i] = row
			continue
		}
		index[d.ID] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}
