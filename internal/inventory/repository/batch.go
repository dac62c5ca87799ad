package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/shopspring/decimal"
)

// Batch is a received lot of a product at a location.
//
// Quantity is the received total and never changes after creation.
// AllocatedQuantity is summed from live allocations when the batch is read;
// the remaining derived fields are filled in by the service layer and are
// never stored.
type Batch struct {
	ID                string              `db:"id" json:"id"`
	ProductID         string              `db:"product_id" json:"product_id"`
	LocationID        string              `db:"location_id" json:"location_id"`
	SupplierID        *string             `db:"supplier_id" json:"supplier_id,omitempty"`
	BatchNumber       string              `db:"batch_number" json:"batch_number"`
	Quantity          int                 `db:"quantity" json:"quantity"`
	Cost              decimal.NullDecimal `db:"cost" json:"cost"`
	ManufacturingDate *time.Time          `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ExpiryDate        time.Time           `db:"expiry_date" json:"expiry_date"`
	ReceivingDate     *time.Time          `db:"receiving_date" json:"receiving_date,omitempty"`
	AlertDate         *time.Time          `db:"alert_date" json:"alert_date,omitempty"`
	ClearanceDate     *time.Time          `db:"clearance_date" json:"clearance_date,omitempty"`
	StockType         domain.StockType    `db:"stock_type" json:"stock_type"`
	ParentBatchID     *string             `db:"parent_batch_id" json:"parent_batch_id,omitempty"`
	AllocatedQuantity int                 `db:"allocated_quantity" json:"allocated_quantity"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`

	UnallocatedQuantity int                 `db:"-" json:"unallocated_quantity"`
	Status              domain.ExpiryStatus `db:"-" json:"status"`
	DaysToExpiry        int                 `db:"-" json:"days_to_expiry"`
}

// BatchFilter narrows List. Zero values are ignored.
type BatchFilter struct {
	Search       string
	ProductID    string
	LocationID   string
	StockType    domain.StockType
	// ExpiryBefore is inclusive: batches expiring on that day match
	ExpiryBefore *time.Time
	// Expiry bounds derived from a status filter
	ExpiryAfter    *time.Time
	ExpiryNotAfter *time.Time
	Limit          int
	Offset         int
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `b.id, b.product_id, b.location_id, b.supplier_id, b.batch_number, b.quantity, b.cost,
	b.manufacturing_date, b.expiry_date, b.receiving_date, b.alert_date, b.clearance_date,
	b.stock_type, b.parent_batch_id, b.created_at, b.updated_at`

const batchSelect = `
	SELECT ` + batchColumns + `,
		COALESCE((SELECT SUM(a.allocated_qty) FROM shelf_allocations a WHERE a.batch_id = b.id), 0) AS allocated_quantity
	FROM batches b`

// Create inserts a batch
func (r *BatchRepository) Create(ctx context.Context, b *Batch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batches (
			id, product_id, location_id, supplier_id, batch_number, quantity, cost,
			manufacturing_date, expiry_date, receiving_date, alert_date, clearance_date,
			stock_type, parent_batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		b.ID, b.ProductID, b.LocationID, b.SupplierID, b.BatchNumber, b.Quantity, b.Cost,
		b.ManufacturingDate, b.ExpiryDate, b.ReceivingDate, b.AlertDate, b.ClearanceDate,
		b.StockType, b.ParentBatchID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return database.Translate(err)
}

// GetByID gets a batch with its live allocated quantity
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	if err := r.db.GetContext(ctx, &b, batchSelect+` WHERE b.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &b, nil
}

// LockByID locks the batch row until the surrounding transaction ends. Every
// write to the batch's allocation set goes through this lock, which makes it
// the per-batch critical section. AllocatedQuantity is left at zero because
// aggregates cannot be combined with FOR UPDATE.
func (r *BatchRepository) LockByID(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	query := `SELECT ` + batchColumns + ` FROM batches b WHERE b.id = $1 FOR UPDATE`
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &b, nil
}

// Update writes every mutable column. Quantity is not among them.
func (r *BatchRepository) Update(ctx context.Context, b *Batch) error {
	query := `
		UPDATE batches SET
			product_id = $2, location_id = $3, supplier_id = $4, batch_number = $5, cost = $6,
			manufacturing_date = $7, expiry_date = $8, receiving_date = $9, alert_date = $10,
			clearance_date = $11, stock_type = $12, parent_batch_id = $13
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		b.ID, b.ProductID, b.LocationID, b.SupplierID, b.BatchNumber, b.Cost,
		b.ManufacturingDate, b.ExpiryDate, b.ReceivingDate, b.AlertDate,
		b.ClearanceDate, b.StockType, b.ParentBatchID,
	).Scan(&b.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.NotFound("batch")
	}
	return database.Translate(err)
}

// Delete removes the batch row. Callers delete its allocations first.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// List returns one page of batches ordered by expiry then id, plus the total
func (r *BatchRepository) List(ctx context.Context, f BatchFilter) ([]*Batch, int64, error) {
	var where whereClause
	if f.Search != "" {
		where.add(`b.batch_number ILIKE ?`, "%"+escapeLike(f.Search)+"%")
	}
	if f.ProductID != "" {
		where.add(`b.product_id = ?`, f.ProductID)
	}
	if f.LocationID != "" {
		where.add(`b.location_id = ?`, f.LocationID)
	}
	if f.StockType != "" {
		where.add(`b.stock_type = ?`, f.StockType)
	}
	if f.ExpiryBefore != nil {
		where.add(`b.expiry_date <= ?`, *f.ExpiryBefore)
	}
	if f.ExpiryAfter != nil {
		where.add(`b.expiry_date > ?`, *f.ExpiryAfter)
	}
	if f.ExpiryNotAfter != nil {
		where.add(`b.expiry_date <= ?`, *f.ExpiryNotAfter)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM batches b`+where.String(), where.args...); err != nil {
		return nil, 0, err
	}

	limit, args := where.page(f.Limit, f.Offset)
	batches := []*Batch{}
	query := batchSelect + where.String() + ` ORDER BY b.expiry_date, b.id` + limit
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, err
	}

	return batches, total, nil
}

// ListExpiringUpTo lists batches expiring on or before cutoff that still hold
// allocated stock
func (r *BatchRepository) ListExpiringUpTo(ctx context.Context, cutoff time.Time) ([]*Batch, error) {
	batches := []*Batch{}
	query := batchSelect + ` WHERE b.expiry_date <= $1 AND EXISTS (SELECT 1 FROM shelf_allocations a WHERE a.batch_id = b.id) ORDER BY b.expiry_date, b.id`
	if err := r.db.SelectContext(ctx, &batches, query, cutoff); err != nil {
		return nil, err
	}
	return batches, nil
}
