package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/crediario/internal/installments"
	"github.com/odyssey-erp/crediario/internal/inventory"
	"github.com/odyssey-erp/crediario/internal/platform/db"
)

// Repository provides data access for sales operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sales repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the statements of one sale transaction. The inventory
// and installment repositories it hands out share the same transaction and
// tenant scope.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, customerID int64) (Customer, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	InsertItems(ctx context.Context, items []Item) ([]Item, error)
	GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error)
	ListItems(ctx context.Context, saleIDs []int64) (map[int64][]Item, error)
	MarkCancelled(ctx context.Context, saleID int64, at time.Time) error
	Inventory() inventory.TxRepository
	Installments() installments.TxRepository
}

type txRepo struct {
	scope        db.Scope
	inventory    inventory.TxRepository
	installments installments.TxRepository
}

// WithTx executes fn in a read-committed transaction scoped to companyID.
func (r *Repository) WithTx(ctx context.Context, companyID int64, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		scope, err := db.NewScope(tx, companyID)
		if err != nil {
			return err
		}
		return fn(ctx, &txRepo{
			scope:        scope,
			inventory:    inventory.NewTxRepository(scope),
			installments: installments.NewTxRepository(scope),
		})
	})
}

func (r *txRepo) Inventory() inventory.TxRepository {
	return r.inventory
}

func (r *txRepo) Installments() installments.TxRepository {
	return r.installments
}

// ============================================================================
// CUSTOMERS
// ============================================================================

func (r *txRepo) GetCustomerForUpdate(ctx context.Context, customerID int64) (Customer, error) {
	var c Customer
	err := r.scope.QueryRow(ctx, `SELECT id, company_id, name, is_active,
	COALESCE(document_id, ''), COALESCE(phone, ''), COALESCE(address, '')
FROM customers
WHERE company_id = $1 AND id = $2
FOR UPDATE`, customerID).Scan(&c.ID, &c.CompanyID, &c.Name, &c.IsActive, &c.DocumentID, &c.Phone, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	c.DocumentID = strings.TrimSpace(c.DocumentID)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	return c, nil
}

// ============================================================================
// SALES
// ============================================================================

const saleColumns = `id, company_id, customer_id, COALESCE(user_id, 0), subtotal, discount_amount, total_amount,
	payment_type, status, installments_count, COALESCE(notes, ''), created_at, cancelled_at`

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s                   Sale
		paymentType, status string
	)
	err := row.Scan(&s.ID, &s.CompanyID, &s.CustomerID, &s.UserID, &s.Subtotal, &s.DiscountAmount, &s.TotalAmount,
		&paymentType, &status, &s.InstallmentsCount, &s.Notes, &s.CreatedAt, &s.CancelledAt)
	if err != nil {
		return Sale{}, err
	}
	s.PaymentType = PaymentType(paymentType)
	s.Status = Status(status)
	return s, nil
}

func (r *txRepo) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := r.scope.QueryRow(ctx, `INSERT INTO sales
	(company_id, customer_id, user_id, subtotal, discount_amount, total_amount, payment_type, status, installments_count, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		sale.CustomerID, db.NullInt64(sale.UserID), sale.Subtotal, sale.DiscountAmount, sale.TotalAmount,
		string(sale.PaymentType), string(sale.Status), sale.InstallmentsCount, db.NullString(sale.Notes), sale.CreatedAt,
	).Scan(&sale.ID)
	if err != nil {
		return Sale{}, err
	}
	sale.CompanyID = r.scope.CompanyID()
	return sale, nil
}

func (r *txRepo) InsertItems(ctx context.Context, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		err := r.scope.QueryRow(ctx, `INSERT INTO sale_items
	(company_id, sale_id, product_id, quantity, unit_price, total_price, unit_cost_price)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice, item.UnitCostPrice).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error) {
	sale, err := scanSale(r.scope.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales
WHERE company_id = $1 AND id = $2
FOR UPDATE`, saleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	return sale, err
}

func (r *txRepo) ListItems(ctx context.Context, saleIDs []int64) (map[int64][]Item, error) {
	return listItems(ctx, r.scope, saleIDs)
}

func (r *txRepo) MarkCancelled(ctx context.Context, saleID int64, at time.Time) error {
	tag, err := r.scope.Exec(ctx, `UPDATE sales SET status = 'cancelled', cancelled_at = $3, updated_at = NOW()
WHERE company_id = $1 AND id = $2`, saleID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func listItems(ctx context.Context, q db.Scope, saleIDs []int64) (map[int64][]Item, error) {
	out := make(map[int64][]Item, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, quantity, unit_price, total_price, unit_cost_price
FROM sale_items
WHERE company_id = $1 AND sale_id = ANY($2)
ORDER BY sale_id, id`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.UnitCostPrice); err != nil {
			return nil, err
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

// GetSale loads a sale header without locking it.
func (r *Repository) GetSale(ctx context.Context, companyID, saleID int64) (Sale, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return Sale{}, err
	}
	sale, err := scanSale(scope.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE company_id = $1 AND id = $2`, saleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	return sale, err
}

// ListItems loads the items of many sales with one query.
func (r *Repository) ListItems(ctx context.Context, companyID int64, saleIDs []int64) (map[int64][]Item, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return nil, err
	}
	return listItems(ctx, scope, saleIDs)
}

// ListSales returns a page of sales and the total row count for the filter.
func (r *Repository) ListSales(ctx context.Context, companyID int64, filter ListFilter) ([]Sale, int, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return nil, 0, err
	}
	where := `WHERE company_id = $1
	AND ($2::text IS NULL OR status = $2)
	AND ($3::bigint IS NULL OR customer_id = $3)
	AND ($4::timestamptz IS NULL OR created_at >= $4)
	AND ($5::timestamptz IS NULL OR created_at < $5)`
	args := []any{db.NullString(string(filter.Status)), db.NullInt64(filter.CustomerID), db.NullTime(filter.From), db.NullTime(filter.To)}

	var total int
	if err := scope.QueryRow(ctx, `SELECT COUNT(*) FROM sales `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PerPage
	rows, err := scope.Query(ctx, `SELECT `+saleColumns+` FROM sales `+where+`
ORDER BY created_at DESC, id DESC
LIMIT $6 OFFSET $7`, append(args, filter.PerPage, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
