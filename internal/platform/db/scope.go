package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNoTenant is returned when a scope is built without a company.
var ErrNoTenant = errors.New("platform/db: company id required")

// Scope runs statements on behalf of one company. The company id is always
// bound as $1, so every statement issued through a Scope must filter on
// company_id = $1 and number its own parameters from $2.
type Scope struct {
	q         DBTX
	companyID int64
}

// NewScope binds q to companyID.
func NewScope(q DBTX, companyID int64) (Scope, error) {
	if companyID <= 0 {
		return Scope{}, ErrNoTenant
	}
	return Scope{q: q, companyID: companyID}, nil
}

// CompanyID returns the tenant the scope is bound to.
func (s Scope) CompanyID() int64 {
	return s.companyID
}

// Exec runs a statement with the company id prepended to args.
func (s Scope) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.q.Exec(ctx, sql, s.args(args)...)
}

// Query runs a query with the company id prepended to args.
func (s Scope) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.q.Query(ctx, sql, s.args(args)...)
}

// QueryRow runs a single-row query with the company id prepended to args.
func (s Scope) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.q.QueryRow(ctx, sql, s.args(args)...)
}

func (s Scope) args(args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, s.companyID)
	return append(out, args...)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
