package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "competitor_snapshots", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"competitor_snapshots"}, []string{"id", "product_id"}).WillReturnResult(3)

	rows := [][]any{{"s1", "p1"}, {"s2", "p1"}, {"s3", "p2"}}
	n, err := CopyFrom(context.Background(), mock, "competitor_snapshots", []string{"id", "product_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"competitor_snapshots"}, []string{"id"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "competitor_snapshots", []string{"id"}, [][]any{{"s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO competitor_snapshots")
	assert.NoError(t, mock.ExpectationsWereMet())
}
