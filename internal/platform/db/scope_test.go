package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDB struct {
	sql  string
	args []any
}

func (r *recordingDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (r *recordingDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.sql, r.args = sql, args
	return nil, errors.New("not implemented")
}

func (r *recordingDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r.sql, r.args = sql, args
	return nil
}

func TestScopeBindsCompanyFirst(t *testing.T) {
	rec := &recordingDB{}
	scope, err := NewScope(rec, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), scope.CompanyID())

	tag, err := scope.Exec(context.Background(), "UPDATE products SET stock_quantity = $3 WHERE company_id = $1 AND id = $2", int64(7), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.RowsAffected())
	assert.Equal(t, []any{int64(42), int64(7), 3}, rec.args)

	_, _ = scope.Query(context.Background(), "SELECT 1 WHERE company_id = $1")
	assert.Equal(t, []any{int64(42)}, rec.args)
}

func TestNewScopeRequiresCompany(t *testing.T) {
	_, err := NewScope(&recordingDB{}, 0)
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert payment: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23514"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, NullString(""))
	assert.Equal(t, "x", NullString("x"))
	assert.Nil(t, NullInt64(0))
	assert.Equal(t, int64(5), NullInt64(5))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("lock product: %w", &pgconn.PgError{Code: "40P01"})))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23514"}))
	assert.False(t, IsRetryable(nil))
}

func TestPoolConfigApply(t *testing.T) {
	config, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/crediario")
	require.NoError(t, err)
	PoolConfig{MaxConns: 8, MinConns: 2, MaxConnLifetime: time.Hour}.apply(config)
	assert.Equal(t, int32(8), config.MaxConns)
	assert.Equal(t, int32(2), config.MinConns)
	assert.Equal(t, time.Hour, config.MaxConnLifetime)
	assert.Equal(t, ApplicationName, config.ConnConfig.RuntimeParams["application_name"])

	config, err = pgxpool.ParseConfig("postgres://u:p@localhost:5432/crediario?application_name=psql&pool_max_conns=4")
	require.NoError(t, err)
	PoolConfig{MinConns: 10}.apply(config)
	assert.Equal(t, int32(4), config.MaxConns)
	assert.Equal(t, int32(0), config.MinConns)
	assert.Equal(t, "psql", config.ConnConfig.RuntimeParams["application_name"])
}
