package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
)

// Allocation assigns part of a batch's quantity to a shelf. Quantities are
// never edited in place; a change is a delete followed by a create.
type Allocation struct {
	ID           string    `db:"id" json:"id"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	ShelfID      string    `db:"shelf_id" json:"shelf_id"`
	AllocatedQty int       `db:"allocated_qty" json:"allocated_qty"`
	Threshold    *int      `db:"threshold" json:"threshold,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DispenseCandidateRow is one allocation joined with its batch and shelf, as
// read for dispense planning
type DispenseCandidateRow struct {
	AllocationID   string                `db:"allocation_id"`
	BatchID        string                `db:"batch_id"`
	BatchNumber    string                `db:"batch_number"`
	ShelfID        string                `db:"shelf_id"`
	AllocatedQty   int                   `db:"allocated_qty"`
	ExpiryDate     time.Time             `db:"expiry_date"`
	ReceivingDate  *time.Time            `db:"receiving_date"`
	BatchCreatedAt time.Time             `db:"batch_created_at"`
	DispatchMethod domain.DispatchMethod `db:"dispatch_method"`
}

// ThresholdRow is an allocation holding no more than its reorder threshold
type ThresholdRow struct {
	AllocationID string `db:"allocation_id"`
	BatchID      string `db:"batch_id"`
	ShelfID      string `db:"shelf_id"`
	AllocatedQty int    `db:"allocated_qty"`
	Threshold    int    `db:"threshold"`
}

// AllocationRepository handles shelf allocation persistence
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

const allocationColumns = `id, batch_id, shelf_id, allocated_qty, threshold, created_at`

// Create inserts an allocation
func (r *AllocationRepository) Create(ctx context.Context, a *Allocation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO shelf_allocations (id, batch_id, shelf_id, allocated_qty, threshold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query, a.ID, a.BatchID, a.ShelfID, a.AllocatedQty, a.Threshold).
		Scan(&a.CreatedAt)
	return database.Translate(err)
}

// GetByID gets an allocation by ID
func (r *AllocationRepository) GetByID(ctx context.Context, id string) (*Allocation, error) {
	var a Allocation
	if err := r.db.GetContext(ctx, &a, `SELECT `+allocationColumns+` FROM shelf_allocations WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("allocation")
		}
		return nil, err
	}
	return &a, nil
}

// Delete removes an allocation
func (r *AllocationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shelf_allocations WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("allocation")
	}
	return nil
}

// DeleteByBatch removes every allocation of a batch and reports how many rows
// and how much quantity were released
func (r *AllocationRepository) DeleteByBatch(ctx context.Context, batchID string) (count int, released int, err error) {
	query := `
		WITH removed AS (
			DELETE FROM shelf_allocations WHERE batch_id = $1 RETURNING allocated_qty
		)
		SELECT COUNT(*), COALESCE(SUM(allocated_qty), 0) FROM removed
	`
	err = r.db.QueryRowxContext(ctx, query, batchID).Scan(&count, &released)
	return count, released, err
}

// ListByBatch lists the allocations of a batch
func (r *AllocationRepository) ListByBatch(ctx context.Context, batchID string) ([]*Allocation, error) {
	allocations := []*Allocation{}
	query := `SELECT ` + allocationColumns + ` FROM shelf_allocations WHERE batch_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &allocations, query, batchID); err != nil {
		return nil, err
	}
	return allocations, nil
}

// ListByShelf lists the allocations on a shelf
func (r *AllocationRepository) ListByShelf(ctx context.Context, shelfID string) ([]*Allocation, error) {
	allocations := []*Allocation{}
	query := `SELECT ` + allocationColumns + ` FROM shelf_allocations WHERE shelf_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &allocations, query, shelfID); err != nil {
		return nil, err
	}
	return allocations, nil
}

// SumByBatch sums the allocated quantity of a batch
func (r *AllocationRepository) SumByBatch(ctx context.Context, batchID string) (int, error) {
	var sum int
	err := r.db.GetContext(ctx, &sum, `SELECT COALESCE(SUM(allocated_qty), 0) FROM shelf_allocations WHERE batch_id = $1`, batchID)
	return sum, err
}

// ListAtOrBelowThreshold lists allocations whose quantity has fallen to their
// reorder threshold
func (r *AllocationRepository) ListAtOrBelowThreshold(ctx context.Context) ([]*ThresholdRow, error) {
	rows := []*ThresholdRow{}
	query := `
		SELECT id AS allocation_id, batch_id, shelf_id, allocated_qty, threshold
		FROM shelf_allocations
		WHERE threshold IS NOT NULL AND allocated_qty <= threshold
		ORDER BY shelf_id, id
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDispenseCandidates lists every allocation of a product at a location in
// storage order. The dispense planner applies the ordering policy.
func (r *AllocationRepository) ListDispenseCandidates(ctx context.Context, productID, locationID string) ([]*DispenseCandidateRow, error) {
	rows := []*DispenseCandidateRow{}
	query := `
		SELECT a.id AS allocation_id, a.batch_id, b.batch_number, a.shelf_id, a.allocated_qty,
			b.expiry_date, b.receiving_date, b.created_at AS batch_created_at, s.dispatch_method
		FROM shelf_allocations a
		JOIN batches b ON b.id = a.batch_id
		JOIN shelves s ON s.id = a.shelf_id
		WHERE b.product_id = $1 AND b.location_id = $2 AND a.allocated_qty > 0
		ORDER BY a.created_at, a.id
	`
	if err := r.db.SelectContext(ctx, &rows, query, productID, locationID); err != nil {
		return nil, err
	}
	return rows, nil
}
