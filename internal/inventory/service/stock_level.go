package service

import (
	"context"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// StockLevel is the live stock of a product at a location in one stock pool.
// DispatchMethods lists the methods of the shelves currently holding it.
type StockLevel struct {
	ProductID           string                  `json:"product_id"`
	LocationID          string                  `json:"location_id"`
	StockType           domain.StockType        `json:"stock_type"`
	BatchCount          int                     `json:"batch_count"`
	TotalQuantity       int                     `json:"total_quantity"`
	AllocatedQuantity   int                     `json:"allocated_quantity"`
	UnallocatedQuantity int                     `json:"unallocated_quantity"`
	DispatchMethods     []domain.DispatchMethod `json:"dispatch_methods"`
}

// StockLevelQuery selects stock levels. At least one of ProductID and
// LocationID is required.
type StockLevelQuery struct {
	ProductID  string
	LocationID string
	StockType  domain.StockType
}

// StockLevelService reports stock per product, location and stock type. It
// derives everything from batches and allocations on each call.
type StockLevelService struct {
	batches   *repository.BatchRepository
	locations *repository.LocationRepository
	logger    *logger.Logger
}

// NewStockLevelService creates a new stock level service
func NewStockLevelService(batches *repository.BatchRepository, locations *repository.LocationRepository, log *logger.Logger) *StockLevelService {
	return &StockLevelService{
		batches:   batches,
		locations: locations,
		logger:    log.WithComponent("stock_level_service"),
	}
}

// List returns the stock levels matching q, ordered by product, location and
// stock type
func (s *StockLevelService) List(ctx context.Context, q StockLevelQuery) ([]StockLevel, error) {
	if q.ProductID == "" && q.LocationID == "" {
		return nil, errors.Validation(map[string]string{
			"product_id": "product_id or location_id is required",
		})
	}
	if q.StockType != "" && !q.StockType.Valid() {
		return nil, errors.Validation(map[string]string{
			"stock_type": "must be one of: store, pharmacy, quarantine, external",
		})
	}

	if q.LocationID != "" {
		exists, err := s.locations.Exists(ctx, q.LocationID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.NotFound("location")
		}
	}

	rows, err := s.batches.StockLevels(ctx, repository.StockLevelFilter{
		ProductID:  q.ProductID,
		LocationID: q.LocationID,
		StockType:  q.StockType,
	})
	if err != nil {
		return nil, err
	}

	levels := make([]StockLevel, len(rows))
	for i, r := range rows {
		remaining := r.TotalQuantity - r.AllocatedQuantity
		if remaining < 0 {
			s.logger.Error().
				Str("product_id", r.ProductID).
				Str("location_id", r.LocationID).
				Str("stock_type", string(r.StockType)).
				Int("quantity", r.TotalQuantity).
				Int("allocated", r.AllocatedQuantity).
				Msg("invariant violation: allocations exceed stock quantity")
			return nil, errors.InvariantViolation("stock of product " + r.ProductID + " is over-allocated by " + itoa(-remaining))
		}

		methods := make([]domain.DispatchMethod, len(r.DispatchMethods))
		for j, m := range r.DispatchMethods {
			methods[j] = domain.DispatchMethod(m)
		}

		levels[i] = StockLevel{
			ProductID:           r.ProductID,
			LocationID:          r.LocationID,
			StockType:           r.StockType,
			BatchCount:          r.BatchCount,
			TotalQuantity:       r.TotalQuantity,
			AllocatedQuantity:   r.AllocatedQuantity,
			UnallocatedQuantity: remaining,
			DispatchMethods:     methods,
		}
	}
	return levels, nil
}
