package repository

import (
	"context"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
)

// StockLevelRow is the live stock of one product at one location in one
// stock pool
type StockLevelRow struct {
	ProductID         string           `db:"product_id"`
	LocationID        string           `db:"location_id"`
	StockType         domain.StockType `db:"stock_type"`
	BatchCount        int              `db:"batch_count"`
	TotalQuantity     int              `db:"total_quantity"`
	AllocatedQuantity int              `db:"allocated_quantity"`
	DispatchMethods   pq.StringArray   `db:"dispatch_methods"`
}

// StockLevelFilter narrows StockLevels. Zero values are ignored.
type StockLevelFilter struct {
	ProductID  string
	LocationID string
	StockType  domain.StockType
}

// StockLevels sums batch quantities and their live allocations per
// (product, location, stock type). Nothing here is stored; every call reads
// the current ledger.
func (r *BatchRepository) StockLevels(ctx context.Context, f StockLevelFilter) ([]*StockLevelRow, error) {
	var where whereClause
	if f.ProductID != "" {
		where.add(`b.product_id = ?`, f.ProductID)
	}
	if f.LocationID != "" {
		where.add(`b.location_id = ?`, f.LocationID)
	}
	if f.StockType != "" {
		where.add(`b.stock_type = ?`, string(f.StockType))
	}

	query := `
		SELECT b.product_id, b.location_id, b.stock_type,
			COUNT(*) AS batch_count,
			SUM(b.quantity) AS total_quantity,
			COALESCE(SUM(a.allocated), 0) AS allocated_quantity,
			ARRAY(
				SELECT DISTINCT s.dispatch_method
				FROM shelf_allocations sa
				JOIN shelves s ON s.id = sa.shelf_id
				JOIN batches sb ON sb.id = sa.batch_id
				WHERE sb.product_id = b.product_id AND sb.location_id = b.location_id
					AND sb.stock_type = b.stock_type AND sa.allocated_qty > 0
				ORDER BY s.dispatch_method
			) AS dispatch_methods
		FROM batches b
		LEFT JOIN (
			SELECT batch_id, SUM(allocated_qty) AS allocated FROM shelf_allocations GROUP BY batch_id
		) a ON a.batch_id = b.id` + where.String() + `
		GROUP BY b.product_id, b.location_id, b.stock_type
		ORDER BY b.product_id, b.location_id, b.stock_type`

	rows := []*StockLevelRow{}
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, err
	}
	return rows, nil
}
