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

// Shelf is a storage subdivision of a location. OnHandQuantity is summed from
// live allocations on every read.
type Shelf struct {
	ID             string                `db:"id" json:"id"`
	LocationID     string                `db:"location_id" json:"location_id"`
	LocationName   string                `db:"location_name" json:"location_name"`
	DispatchMethod domain.DispatchMethod `db:"dispatch_method" json:"dispatch_method"`
	OnHandQuantity int                   `db:"on_hand_quantity" json:"on_hand_quantity"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at" json:"updated_at"`
}

// ShelfRepository handles shelf persistence
type ShelfRepository struct {
	db *database.DB
}

// NewShelfRepository creates a new shelf repository
func NewShelfRepository(db *database.DB) *ShelfRepository {
	return &ShelfRepository{db: db}
}

const shelfSelect = `
	SELECT s.id, s.location_id, l.name AS location_name, s.dispatch_method,
		COALESCE((SELECT SUM(a.allocated_qty) FROM shelf_allocations a WHERE a.shelf_id = s.id), 0) AS on_hand_quantity,
		s.created_at, s.updated_at
	FROM shelves s
	JOIN locations l ON l.id = s.location_id`

// Create inserts a shelf
func (r *ShelfRepository) Create(ctx context.Context, shelf *Shelf) error {
	if shelf.ID == "" {
		shelf.ID = uuid.New().String()
	}

	query := `
		INSERT INTO shelves (id, location_id, dispatch_method)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, shelf.ID, shelf.LocationID, shelf.DispatchMethod).
		Scan(&shelf.CreatedAt, &shelf.UpdatedAt)
	return database.Translate(err)
}

// GetByID gets a shelf with its live on-hand quantity
func (r *ShelfRepository) GetByID(ctx context.Context, id string) (*Shelf, error) {
	var shelf Shelf
	if err := r.db.GetContext(ctx, &shelf, shelfSelect+` WHERE s.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("shelf")
		}
		return nil, err
	}
	return &shelf, nil
}

// LockByID locks the shelf row for the rest of the transaction. New
// allocations take a key-share lock on the shelf through their foreign key,
// so holding this lock keeps the shelf empty while it is being deleted.
func (r *ShelfRepository) LockByID(ctx context.Context, id string) (*Shelf, error) {
	var shelf Shelf
	query := `SELECT id, location_id, dispatch_method, created_at, updated_at FROM shelves WHERE id = $1 FOR UPDATE`
	if err := r.db.GetContext(ctx, &shelf, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("shelf")
		}
		return nil, err
	}
	return &shelf, nil
}

// UpdateDispatchMethod changes how stock on the shelf is drawn
func (r *ShelfRepository) UpdateDispatchMethod(ctx context.Context, id string, method domain.DispatchMethod) error {
	result, err := r.db.ExecContext(ctx, `UPDATE shelves SET dispatch_method = $2 WHERE id = $1`, id, method)
	if err != nil {
		return database.Translate(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("shelf")
	}
	return nil
}

// Delete removes a shelf
func (r *ShelfRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shelves WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errors.Conflict("shelf still holds allocations")
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("shelf")
	}
	return nil
}

// ListByLocation lists the shelves of a location
func (r *ShelfRepository) ListByLocation(ctx context.Context, locationID string) ([]*Shelf, error) {
	shelves := []*Shelf{}
	if err := r.db.SelectContext(ctx, &shelves, shelfSelect+` WHERE s.location_id = $1 ORDER BY s.created_at, s.id`, locationID); err != nil {
		return nil, err
	}
	return shelves, nil
}

// CountAllocations counts allocations that still hold stock on the shelf
func (r *ShelfRepository) CountAllocations(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM shelf_allocations WHERE shelf_id = $1 AND allocated_qty > 0`, id)
	return count, err
}
