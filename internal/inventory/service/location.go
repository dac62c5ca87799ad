package service

import (
	"context"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// LocationService maintains the location registry and its parent tree
type LocationService struct {
	db        *database.DB
	locations *repository.LocationRepository
	logger    *logger.Logger
}

// NewLocationService creates a new location service
func NewLocationService(db *database.DB, locations *repository.LocationRepository, log *logger.Logger) *LocationService {
	return &LocationService{
		db:        db,
		locations: locations,
		logger:    log.WithComponent("location_service"),
	}
}

// LocationPatch carries the fields to change. A nil field is left as is; an
// empty ParentLocationID detaches the location from its parent.
type LocationPatch struct {
	Name             *string
	Type             *domain.LocationType
	Status           *domain.LocationStatus
	Address          *string
	IsDirectToMain   *bool
	ParentLocationID *string
}

// Create registers a location
func (s *LocationService) Create(ctx context.Context, loc *repository.Location) error {
	if loc.Status == "" {
		loc.Status = domain.LocationActive
	}
	if err := validateLocation(loc); err != nil {
		return err
	}

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if loc.ParentLocationID != nil {
			if err := s.locations.LockTree(ctx); err != nil {
				return err
			}
			if err := s.requireParent(ctx, *loc.ParentLocationID); err != nil {
				return err
			}
		}
		return s.locations.Create(ctx, loc)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("location_id", loc.ID).Str("type", string(loc.Type)).Msg("location created")
	return nil
}

// Get gets a location by ID
func (s *LocationService) Get(ctx context.Context, id string) (*repository.Location, error) {
	return s.locations.GetByID(ctx, id)
}

// List lists locations matching the filter
func (s *LocationService) List(ctx context.Context, filter repository.LocationFilter) ([]*repository.Location, int64, error) {
	return s.locations.List(ctx, filter)
}

// ListChildren lists the direct children of a location
func (s *LocationService) ListChildren(ctx context.Context, id string) ([]*repository.Location, error) {
	if _, err := s.locations.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.locations.ListChildren(ctx, id)
}

// Update applies patch to a location. A new parent must exist and must not
// be the location itself or one of its descendants.
func (s *LocationService) Update(ctx context.Context, id string, patch LocationPatch) (*repository.Location, error) {
	var loc *repository.Location
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if patch.ParentLocationID != nil && *patch.ParentLocationID != "" {
			if err := s.locations.LockTree(ctx); err != nil {
				return err
			}
		}

		var err error
		loc, err = s.locations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		applyLocationPatch(loc, patch)
		if err := validateLocation(loc); err != nil {
			return err
		}

		if patch.ParentLocationID != nil && loc.ParentLocationID != nil {
			parentID := *loc.ParentLocationID
			if parentID == id {
				return errors.InvalidReference("a location cannot be its own parent")
			}
			if err := s.requireParent(ctx, parentID); err != nil {
				return err
			}
			// id already sits above parentID: linking them would close a loop
			cycle, err := s.locations.IsAncestorOrSelf(ctx, parentID, id)
			if err != nil {
				return err
			}
			if cycle {
				return errors.InvalidReference("parent location would create a cycle")
			}
		}

		return s.locations.Update(ctx, loc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("location_id", id).Msg("location updated")
	return loc, nil
}

// Delete removes a location that nothing references any more
func (s *LocationService) Delete(ctx context.Context, id string) error {
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.locations.LockTree(ctx); err != nil {
			return err
		}
		if _, err := s.locations.GetByID(ctx, id); err != nil {
			return err
		}

		deps, err := s.locations.CountDependents(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return errors.Conflict("location still has shelves, batches or child locations").WithDetails(map[string]string{
				"shelves":  itoa(deps.Shelves),
				"batches":  itoa(deps.Batches),
				"children": itoa(deps.Children),
			})
		}

		return s.locations.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("location_id", id).Msg("location deleted")
	return nil
}

func (s *LocationService) requireParent(ctx context.Context, parentID string) error {
	exists, err := s.locations.Exists(ctx, parentID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.InvalidReference("parent location does not exist")
	}
	return nil
}

func applyLocationPatch(loc *repository.Location, patch LocationPatch) {
	if patch.Name != nil {
		loc.Name = *patch.Name
	}
	if patch.Type != nil {
		loc.Type = *patch.Type
	}
	if patch.Status != nil {
		loc.Status = *patch.Status
	}
	if patch.Address != nil {
		loc.Address = patch.Address
	}
	if patch.IsDirectToMain != nil {
		loc.IsDirectToMain = *patch.IsDirectToMain
	}
	if patch.ParentLocationID != nil {
		if *patch.ParentLocationID == "" {
			loc.ParentLocationID = nil
		} else {
			parent := *patch.ParentLocationID
			loc.ParentLocationID = &parent
		}
	}
}

func validateLocation(loc *repository.Location) error {
	details := map[string]string{}
	if loc.Name == "" {
		details["name"] = "name is required"
	}
	if !loc.Type.Valid() {
		details["type"] = "must be one of: branch, warehouse, external, supplier, quarantine, clinic"
	}
	if !loc.Status.Valid() {
		details["status"] = "must be one of: active, inactive, suspended"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
