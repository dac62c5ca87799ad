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

// advisory lock serializing changes to the location parent graph
const locationTreeLockKey = 72_140_101

// Location is a physical or organizational place that owns shelves and batches
type Location struct {
	ID               string                `db:"id" json:"id"`
	Name             string                `db:"name" json:"name"`
	Type             domain.LocationType   `db:"type" json:"type"`
	Status           domain.LocationStatus `db:"status" json:"status"`
	Address          *string               `db:"address" json:"address,omitempty"`
	IsDirectToMain   bool                  `db:"is_direct_to_main" json:"is_direct_to_main"`
	ParentLocationID *string               `db:"parent_location_id" json:"parent_location_id,omitempty"`
	CreatedAt        time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time             `db:"updated_at" json:"updated_at"`
}

// LocationFilter narrows List. Zero values are ignored.
type LocationFilter struct {
	Search string
	Type   domain.LocationType
	Status domain.LocationStatus
	Limit  int
	Offset int
}

// LocationDependents counts the records that block deleting a location
type LocationDependents struct {
	Shelves  int `db:"shelves"`
	Batches  int `db:"batches"`
	Children int `db:"children"`
}

// Any reports whether anything still references the location
func (d LocationDependents) Any() bool {
	return d.Shelves > 0 || d.Batches > 0 || d.Children > 0
}

// LocationRepository handles location persistence
type LocationRepository struct {
	db *database.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *database.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

const locationColumns = `id, name, type, status, address, is_direct_to_main, parent_location_id, created_at, updated_at`

// LockTree takes a transaction-scoped advisory lock so that concurrent parent
// changes cannot each pass the cycle check and together form a cycle. Must be
// called inside a transaction.
func (r *LocationRepository) LockTree(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, locationTreeLockKey)
	return err
}

// Create inserts a location
func (r *LocationRepository) Create(ctx context.Context, loc *Location) error {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	query := `
		INSERT INTO locations (id, name, type, status, address, is_direct_to_main, parent_location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		loc.ID, loc.Name, loc.Type, loc.Status, loc.Address, loc.IsDirectToMain, loc.ParentLocationID,
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
	return database.Translate(err)
}

// GetByID gets a location by ID
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*Location, error) {
	var loc Location
	err := r.db.GetContext(ctx, &loc, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("location")
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// Exists reports whether a location with id exists
func (r *LocationRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, id)
	return exists, err
}

// Update writes every mutable column of a location
func (r *LocationRepository) Update(ctx context.Context, loc *Location) error {
	query := `
		UPDATE locations
		SET name = $2, type = $3, status = $4, address = $5, is_direct_to_main = $6, parent_location_id = $7
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		loc.ID, loc.Name, loc.Type, loc.Status, loc.Address, loc.IsDirectToMain, loc.ParentLocationID,
	).Scan(&loc.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.NotFound("location")
	}
	return database.Translate(err)
}

// Delete removes a location. References that appear after the dependents
// check are still caught by the foreign keys.
func (r *LocationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errors.Conflict("location is still referenced by shelves, batches or child locations")
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("location")
	}
	return nil
}

// List returns one page of locations ordered by name then id, plus the total
func (r *LocationRepository) List(ctx context.Context, f LocationFilter) ([]*Location, int64, error) {
	var where whereClause
	if f.Search != "" {
		where.add(`name ILIKE ?`, "%"+escapeLike(f.Search)+"%")
	}
	if f.Type != "" {
		where.add(`type = ?`, f.Type)
	}
	if f.Status != "" {
		where.add(`status = ?`, f.Status)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM locations`+where.String(), where.args...); err != nil {
		return nil, 0, err
	}

	limit, args := where.page(f.Limit, f.Offset)
	locations := []*Location{}
	query := `SELECT ` + locationColumns + ` FROM locations` + where.String() + ` ORDER BY name, id` + limit
	if err := r.db.SelectContext(ctx, &locations, query, args...); err != nil {
		return nil, 0, err
	}

	return locations, total, nil
}

// ListChildren returns the direct children of a location
func (r *LocationRepository) ListChildren(ctx context.Context, parentID string) ([]*Location, error) {
	children := []*Location{}
	query := `SELECT ` + locationColumns + ` FROM locations WHERE parent_location_id = $1 ORDER BY name, id`
	if err := r.db.SelectContext(ctx, &children, query, parentID); err != nil {
		return nil, err
	}
	return children, nil
}

// IsAncestorOrSelf reports whether candidate is start itself or appears in
// start's parent chain. Setting start as candidate's parent would then close
// a cycle. UNION (not UNION ALL) stops the walk on a pre-existing loop.
func (r *LocationRepository) IsAncestorOrSelf(ctx context.Context, start, candidate string) (bool, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, parent_location_id FROM locations WHERE id = $1
			UNION
			SELECT l.id, l.parent_location_id FROM locations l JOIN chain c ON l.id = c.parent_location_id
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)
	`
	var found bool
	if err := r.db.GetContext(ctx, &found, query, start, candidate); err != nil {
		return false, err
	}
	return found, nil
}

// CountDependents counts shelves, batches and child locations of a location
func (r *LocationRepository) CountDependents(ctx context.Context, id string) (LocationDependents, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM shelves WHERE location_id = $1) AS shelves,
			(SELECT COUNT(*) FROM batches WHERE location_id = $1) AS batches,
			(SELECT COUNT(*) FROM locations WHERE parent_location_id = $1) AS children
	`
	var d LocationDependents
	err := r.db.GetContext(ctx, &d, query, id)
	return d, err
}
