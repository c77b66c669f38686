package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/crediario/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the ledger.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	LockProducts(ctx context.Context, productIDs []int64) (map[int64]Product, error)
	UpdateStock(ctx context.Context, productID int64, stock int) error
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
}

type txRepo struct {
	scope db.Scope
}

// NewTxRepository binds the inventory statements to a tenant scope, usually
// one opened by another module's transaction.
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

const productColumns = `id, company_id, name, cost_price, sale_price, stock_quantity, is_active`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.CostPrice, &p.SalePrice, &p.StockQuantity, &p.IsActive)
	return p, err
}

// GetProduct loads a product without locking it.
func (r *Repository) GetProduct(ctx context.Context, companyID, productID int64) (Product, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return Product{}, err
	}
	p, err := scanProduct(scope.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id = $1 AND id = $2`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListMovements returns the stock card for one product.
func (r *Repository) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	scope, err := db.NewScope(r.pool, companyID)
	if err != nil {
		return nil, err
	}
	rows, err := scope.Query(ctx, `SELECT id, product_id, company_id, movement_type, quantity, previous_stock, new_stock,
	COALESCE(reference_type, ''), COALESCE(reference_id, 0), COALESCE(notes, ''), COALESCE(created_by, 0), created_at
FROM stock_movements
WHERE company_id = $1 AND product_id = $2
	AND ($3::timestamptz IS NULL OR created_at >= $3)
	AND ($4::timestamptz IS NULL OR created_at < $4)
ORDER BY created_at DESC, id DESC
LIMIT $5`, filter.ProductID, db.NullTime(filter.From), db.NullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var mv Movement
		var kind string
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.CompanyID, &kind, &mv.Quantity, &mv.PreviousStock, &mv.NewStock,
			&mv.ReferenceType, &mv.ReferenceID, &mv.Notes, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.Type = MovementType(kind)
		out = append(out, mv)
	}
	return out, rows.Err()
}

func (r *txRepo) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	p, err := scanProduct(r.scope.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id = $1 AND id = $2 FOR UPDATE`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// LockProducts locks every requested product in ascending id order and
// returns the ones visible to the tenant.
func (r *txRepo) LockProducts(ctx context.Context, productIDs []int64) (map[int64]Product, error) {
	rows, err := r.scope.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE company_id = $1 AND id = ANY($2)
ORDER BY id
FOR UPDATE`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Product, len(productIDs))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *txRepo) UpdateStock(ctx context.Context, productID int64, stock int) error {
	tag, err := r.scope.Exec(ctx, `UPDATE products SET stock_quantity = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2`, productID, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := r.scope.QueryRow(ctx, `INSERT INTO stock_movements
	(company_id, product_id, movement_type, quantity, previous_stock, new_stock, reference_type, reference_id, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		mv.ProductID, string(mv.Type), mv.Quantity, mv.PreviousStock, mv.NewStock,
		db.NullString(mv.ReferenceType), db.NullInt64(mv.ReferenceID), db.NullString(mv.Notes), db.NullInt64(mv.CreatedBy), mv.CreatedAt,
	).Scan(&id)
	return id, err
}
