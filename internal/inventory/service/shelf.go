package service

import (
	"context"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// ShelfService manages the shelves of each location
type ShelfService struct {
	db        *database.DB
	shelves   *repository.ShelfRepository
	locations *repository.LocationRepository
	logger    *logger.Logger
}

// NewShelfService creates a new shelf service
func NewShelfService(
	db *database.DB,
	shelves *repository.ShelfRepository,
	locations *repository.LocationRepository,
	log *logger.Logger,
) *ShelfService {
	return &ShelfService{
		db:        db,
		shelves:   shelves,
		locations: locations,
		logger:    log.WithComponent("shelf_service"),
	}
}

// Create adds a shelf to a location. An empty method defaults to FEFO.
func (s *ShelfService) Create(ctx context.Context, locationID string, method domain.DispatchMethod) (*repository.Shelf, error) {
	if method == "" {
		method = domain.DispatchFEFO
	}
	if !method.Valid() {
		return nil, invalidDispatchMethod()
	}

	exists, err := s.locations.Exists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("location")
	}

	shelf := &repository.Shelf{LocationID: locationID, DispatchMethod: method}
	if err := s.shelves.Create(ctx, shelf); err != nil {
		return nil, err
	}

	s.logger.Info().Str("shelf_id", shelf.ID).Str("location_id", locationID).Msg("shelf created")
	return s.shelves.GetByID(ctx, shelf.ID)
}

// Get gets a shelf with its live on-hand quantity
func (s *ShelfService) Get(ctx context.Context, id string) (*repository.Shelf, error) {
	return s.shelves.GetByID(ctx, id)
}

// ListByLocation lists the shelves of a location
func (s *ShelfService) ListByLocation(ctx context.Context, locationID string) ([]*repository.Shelf, error) {
	exists, err := s.locations.Exists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("location")
	}
	return s.shelves.ListByLocation(ctx, locationID)
}

// UpdateDispatchMethod changes a shelf's dispatch method
func (s *ShelfService) UpdateDispatchMethod(ctx context.Context, id string, method domain.DispatchMethod) (*repository.Shelf, error) {
	if !method.Valid() {
		return nil, invalidDispatchMethod()
	}
	if err := s.shelves.UpdateDispatchMethod(ctx, id, method); err != nil {
		return nil, err
	}

	s.logger.Info().Str("shelf_id", id).Str("dispatch_method", string(method)).Msg("shelf dispatch method updated")
	return s.shelves.GetByID(ctx, id)
}

// Delete removes an empty shelf. Allocations must be cleared first.
func (s *ShelfService) Delete(ctx context.Context, id string) error {
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.shelves.LockByID(ctx, id); err != nil {
			return err
		}

		count, err := s.shelves.CountAllocations(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.Conflict("shelf still holds allocations").WithDetails(map[string]string{
				"allocations": itoa(count),
			})
		}

		return s.shelves.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("shelf_id", id).Msg("shelf deleted")
	return nil
}

func invalidDispatchMethod() error {
	return errors.Validation(map[string]string{
		"dispatch_method": "must be one of: FEFO, FIFO, LIFO, MANUAL",
	})
}
