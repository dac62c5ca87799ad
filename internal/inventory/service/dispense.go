package service

import (
	"context"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// DispenseService plans which allocations to draw from for a dispense. It
// reads the latest committed allocations and never writes.
type DispenseService struct {
	locations   *repository.LocationRepository
	allocations *repository.AllocationRepository
	classifier  domain.ExpiryClassifier
	clock       Clock
	logger      *logger.Logger
}

// NewDispenseService creates a new dispense service
func NewDispenseService(
	locations *repository.LocationRepository,
	allocations *repository.AllocationRepository,
	classifier domain.ExpiryClassifier,
	log *logger.Logger,
) *DispenseService {
	return &DispenseService{
		locations:   locations,
		allocations: allocations,
		classifier:  classifier,
		clock:       systemClock,
		logger:      log.WithComponent("dispense_service"),
	}
}

// WithClock replaces the service clock
func (s *DispenseService) WithClock(clock Clock) *DispenseService {
	s.clock = clock
	return s
}

// DispenseInput asks for requiredQty units of a product at a location
type DispenseInput struct {
	ProductID      string
	LocationID     string
	RequiredQty    int
	IncludeExpired bool
	Method         *domain.DispatchMethod
}

// Plan orders the eligible allocations by dispatch method and draws from them
// until the requirement is met. A shortfall is part of the plan, not an error.
func (s *DispenseService) Plan(ctx context.Context, in DispenseInput) (*domain.DispensePlan, error) {
	details := map[string]string{}
	if in.ProductID == "" {
		details["product_id"] = "product_id is required"
	}
	if in.LocationID == "" {
		details["location_id"] = "location_id is required"
	}
	if in.RequiredQty <= 0 {
		details["required_quantity"] = "must be greater than 0"
	}
	if in.Method != nil && !in.Method.Valid() {
		details["method"] = "must be one of: FEFO, FIFO, LIFO, MANUAL"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	exists, err := s.locations.Exists(ctx, in.LocationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("location")
	}

	rows, err := s.allocations.ListDispenseCandidates(ctx, in.ProductID, in.LocationID)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, len(rows))
	for i, r := range rows {
		candidates[i] = domain.Candidate{
			AllocationID:   r.AllocationID,
			BatchID:        r.BatchID,
			BatchNumber:    r.BatchNumber,
			ShelfID:        r.ShelfID,
			AllocatedQty:   r.AllocatedQty,
			ExpiryDate:     r.ExpiryDate,
			ReceivingDate:  r.ReceivingDate,
			BatchCreatedAt: r.BatchCreatedAt,
			DispatchMethod: r.DispatchMethod,
		}
	}

	plan := domain.PlanDispense(s.classifier, domain.DispenseRequest{
		RequiredQty:    in.RequiredQty,
		IncludeExpired: in.IncludeExpired,
		Method:         in.Method,
		Now:            s.clock(),
	}, candidates)

	s.logger.Debug().
		Str("product_id", in.ProductID).
		Str("location_id", in.LocationID).
		Str("method", string(plan.Method)).
		Int("required", in.RequiredQty).
		Int("fulfilled", plan.FulfilledQty).
		Int("shortfall", plan.Shortfall).
		Msg("dispense planned")

	return &plan, nil
}
