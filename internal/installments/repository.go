package installments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/crediario/internal/platform/db"
)

// Repository persists installments and payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by services.
type TxRepository interface {
	GetInstallmentForUpdate(ctx context.Context, installmentID int64) (Installment, error)
	ListBySaleForUpdate(ctx context.Context, saleID int64) ([]Installment, error)
	ListPayments(ctx context.Context, installmentIDs []int64) (map[int64][]Payment, error)
	InsertInstallments(ctx context.Context, list []Installment) ([]Installment, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	MarkPaid(ctx context.Context, installmentID int64, paidAt time.Time) error
	CancelOpenBySale(ctx context.Context, saleID int64) (int, error)
}

type txRepo struct {
	scope db.Scope
}

// NewTxRepository binds the installment statements to a tenant scope.
func NewTxRepository(scope db.Scope) TxRepository {
	return &txRepo{scope: scope}
}

// WithTx executes the callback inside a read-committed transaction scoped to companyID.
func (r *Repository) WithTx(ctx context.Context, companyID int64, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		scope, err := db.NewScope(tx, companyID)
		if err != nil {
			return err
		}
		return fn(ctx, NewTxRepository(scope))
	})
}

const installmentColumns = `id, sale_id, customer_id, company_id, installment_number, amount, due_date, status, paid_at, created_at`

func scanInstallment(row pgx.Row) (Installment, error) {
	var (
		inst   Installment
		status string
	)
	if err := row.Scan(&inst.ID, &inst.SaleID, &inst.CustomerID, &inst.CompanyID, &inst.InstallmentNumber,
		&inst.Amount, &inst.DueDate, &status, &inst.PaidAt, &inst.CreatedAt); err != nil {
		return Installment{}, err
	}
	inst.Status = Status(status)
	return inst, nil
}

func collectInstallments(rows pgx.Rows) ([]Installment, error) {
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetInstallment loads one installment without locking it.
func (r *Repository) GetInstallment(ctx context.Context, companyID, installmentID int64) (Installment, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return Installment{}, err
	}
	inst, err := scanInstallment(scope.QueryRow(ctx, `SELECT `+installmentColumns+` FROM installments WHERE company_id = $1 AND id = $2`, installmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, ErrInstallmentNotFound
	}
	return inst, err
}

// ListBySale returns the installments of a sale ordered by number.
func (r *Repository) ListBySale(ctx context.Context, companyID, saleID int64) ([]Installment, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return nil, err
	}
	rows, err := scope.Query(ctx, `SELECT `+installmentColumns+` FROM installments
WHERE company_id = $1 AND sale_id = $2
ORDER BY installment_number`, saleID)
	if err != nil {
		return nil, err
	}
	return collectInstallments(rows)
}

// ListPayments loads the payments of many installments with one query.
func (r *Repository) ListPayments(ctx context.Context, companyID int64, installmentIDs []int64) (map[int64][]Payment, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return nil, err
	}
	return listPayments(ctx, scope, installmentIDs)
}

// ListPendingDueBefore returns pending installments of every company due
// before cutoff. It is the only cross-tenant read and serves the overdue job.
func (r *Repository) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Installment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+installmentColumns+` FROM installments
WHERE status = 'pending' AND due_date < $1
ORDER BY due_date, id
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectInstallments(rows)
}

// SetOverdue flips the given installments to overdue when they are still pending.
func (r *Repository) SetOverdue(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE installments SET status = 'overdue', updated_at = NOW()
WHERE id = ANY($1) AND status = 'pending'`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func listPayments(ctx context.Context, q db.Scope, installmentIDs []int64) (map[int64][]Payment, error) {
	out := make(map[int64][]Payment, len(installmentIDs))
	if len(installmentIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, installment_id, company_id, amount_paid, status, paid_at,
	COALESCE(payment_method, ''), reference, COALESCE(notes, ''), COALESCE(created_by, 0)
FROM installment_payments
WHERE company_id = $1 AND installment_id = ANY($2)
ORDER BY paid_at, id`, installmentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p      Payment
			status string
		)
		if err := rows.Scan(&p.ID, &p.InstallmentID, &p.CompanyID, &p.AmountPaid, &status, &p.PaidAt,
			&p.PaymentMethod, &p.Reference, &p.Notes, &p.CreatedBy); err != nil {
			return nil, err
		}
		p.Status = PaymentStatus(status)
		out[p.InstallmentID] = append(out[p.InstallmentID], p)
	}
	return out, rows.Err()
}

func (r *txRepo) GetInstallmentForUpdate(ctx context.Context, installmentID int64) (Installment, error) {
	inst, err := scanInstallment(r.scope.QueryRow(ctx, `SELECT `+installmentColumns+` FROM installments
WHERE company_id = $1 AND id = $2
FOR UPDATE`, installmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, ErrInstallmentNotFound
	}
	return inst, err
}

func (r *txRepo) ListBySaleForUpdate(ctx context.Context, saleID int64) ([]Installment, error) {
	rows, err := r.scope.Query(ctx, `SELECT `+installmentColumns+` FROM installments
WHERE company_id = $1 AND sale_id = $2
ORDER BY installment_number
FOR UPDATE`, saleID)
	if err != nil {
		return nil, err
	}
	return collectInstallments(rows)
}

func (r *txRepo) ListPayments(ctx context.Context, installmentIDs []int64) (map[int64][]Payment, error) {
	return listPayments(ctx, r.scope, installmentIDs)
}

// InsertInstallments writes a whole schedule and returns it with ids assigned.
func (r *txRepo) InsertInstallments(ctx context.Context, list []Installment) ([]Installment, error) {
	out := make([]Installment, 0, len(list))
	for _, inst := range list {
		inst.CompanyID = r.scope.CompanyID()
		err := r.scope.QueryRow(ctx, `INSERT INTO installments (company_id, sale_id, customer_id, installment_number, amount, due_date, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`, inst.SaleID, inst.CustomerID, inst.InstallmentNumber, inst.Amount, inst.DueDate, string(inst.Status)).
			Scan(&inst.ID, &inst.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("installment %d: %w", inst.InstallmentNumber, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.scope.QueryRow(ctx, `INSERT INTO installment_payments
	(company_id, installment_id, amount_paid, status, paid_at, payment_method, reference, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		p.InstallmentID, p.AmountPaid, string(p.Status), p.PaidAt,
		db.NullString(p.PaymentMethod), p.Reference, db.NullString(p.Notes), db.NullInt64(p.CreatedBy),
	).Scan(&id)
	return id, err
}

func (r *txRepo) MarkPaid(ctx context.Context, installmentID int64, paidAt time.Time) error {
	tag, err := r.scope.Exec(ctx, `UPDATE installments SET status = 'paid', paid_at = $3, updated_at = NOW()
WHERE company_id = $1 AND id = $2`, installmentID, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInstallmentNotFound
	}
	return nil
}

// CancelOpenBySale cancels every installment of the sale that is not paid.
func (r *txRepo) CancelOpenBySale(ctx context.Context, saleID int64) (int, error) {
	tag, err := r.scope.Exec(ctx, `UPDATE installments SET status = 'cancelled', updated_at = NOW()
WHERE company_id = $1 AND sale_id = $2 AND status <> 'paid'`, saleID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
