package service

import (
	"context"

	"github.com/medflow/pharmacy-inventory/internal/inventory/events"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/actor"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// AllocationService is the allocation engine. Every write to a batch's
// allocation set locks the batch row first, so the conservation check
// (sum of allocations <= batch quantity) and the write it guards run as one
// critical section per batch. Different batches never contend.
type AllocationService struct {
	db          *database.DB
	batches     *repository.BatchRepository
	shelves     *repository.ShelfRepository
	allocations *repository.AllocationRepository
	publisher   *events.InventoryEventPublisher
	logger      *logger.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(
	db *database.DB,
	batches *repository.BatchRepository,
	shelves *repository.ShelfRepository,
	allocations *repository.AllocationRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *AllocationService {
	return &AllocationService{
		db:          db,
		batches:     batches,
		shelves:     shelves,
		allocations: allocations,
		publisher:   publisher,
		logger:      log.WithComponent("allocation_service"),
	}
}

// AllocateInput places part of a batch on a shelf
type AllocateInput struct {
	BatchID   string
	ShelfID   string
	Quantity  int
	Threshold *int
}

// AllocationResult is a new allocation and what is left of its batch
type AllocationResult struct {
	Allocation          *repository.Allocation `json:"allocation"`
	UnallocatedQuantity int                    `json:"unallocated_quantity"`
}

// UnallocatedView reports how much of a batch is not on any shelf
type UnallocatedView struct {
	BatchID             string `json:"batch_id"`
	Quantity            int    `json:"quantity"`
	AllocatedQuantity   int    `json:"allocated_quantity"`
	UnallocatedQuantity int    `json:"unallocated_quantity"`
}

// Allocate places quantity units of a batch on a shelf of the same location
func (s *AllocationService) Allocate(ctx context.Context, in AllocateInput) (*AllocationResult, error) {
	if err := validateAllocation(in.Quantity, in.Threshold); err != nil {
		return nil, err
	}

	var result *AllocationResult
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		batch, err := s.batches.LockByID(ctx, in.BatchID)
		if err != nil {
			return err
		}

		var remaining int
		result, remaining, err = s.place(ctx, batch, in)
		if err != nil {
			return err
		}
		result.UnallocatedQuantity = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}

	a := result.Allocation
	s.logger.Info().
		Str("allocation_id", a.ID).
		Str("batch_id", a.BatchID).
		Str("shelf_id", a.ShelfID).
		Int("quantity", a.AllocatedQty).
		Int("unallocated", result.UnallocatedQuantity).
		Str("actor", actor.FromContext(ctx).String()).
		Msg("stock allocated")
	s.publisher.PublishAllocationCreated(ctx, a, result.UnallocatedQuantity)

	return result, nil
}

// place validates and writes one allocation. The caller holds the batch lock.
func (s *AllocationService) place(ctx context.Context, batch *repository.Batch, in AllocateInput) (*AllocationResult, int, error) {
	shelf, err := s.shelves.GetByID(ctx, in.ShelfID)
	if err != nil {
		return nil, 0, err
	}
	if shelf.LocationID != batch.LocationID {
		return nil, 0, errors.InvalidReference("shelf belongs to a different location than the batch")
	}

	allocated, err := s.allocations.SumByBatch(ctx, batch.ID)
	if err != nil {
		return nil, 0, err
	}
	available, err := unallocated(s.logger, batch.ID, batch.Quantity, allocated)
	if err != nil {
		return nil, 0, err
	}
	if in.Quantity > available {
		return nil, 0, errors.InsufficientUnallocatedQuantity(in.Quantity, available)
	}

	a := &repository.Allocation{
		BatchID:      batch.ID,
		ShelfID:      shelf.ID,
		AllocatedQty: in.Quantity,
		Threshold:    in.Threshold,
	}
	if err := s.allocations.Create(ctx, a); err != nil {
		return nil, 0, err
	}
	return &AllocationResult{Allocation: a}, available - in.Quantity, nil
}

// Deallocate removes an allocation and returns its stock to the batch's
// unallocated quantity
func (s *AllocationService) Deallocate(ctx context.Context, id string) error {
	var (
		removed   *repository.Allocation
		remaining int
	)
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		a, err := s.allocations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		batch, err := s.batches.LockByID(ctx, a.BatchID)
		if err != nil {
			return err
		}
		// a concurrent delete that won the lock shows up as NotFound here
		if err := s.allocations.Delete(ctx, id); err != nil {
			return err
		}

		allocated, err := s.allocations.SumByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		remaining, err = unallocated(s.logger, batch.ID, batch.Quantity, allocated)
		removed = a
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("allocation_id", id).
		Str("batch_id", removed.BatchID).
		Str("shelf_id", removed.ShelfID).
		Int("quantity", removed.AllocatedQty).
		Str("actor", actor.FromContext(ctx).String()).
		Msg("stock deallocated")
	s.publisher.PublishAllocationRemoved(ctx, removed, remaining)
	return nil
}

// ReplaceInput is the new shape of an existing allocation
type ReplaceInput struct {
	ShelfID   string
	Quantity  int
	Threshold *int
}

// Replace swaps an allocation for a new one on the same batch. The old row is
// deleted and the new one fully re-validated against every other allocation
// of the batch inside one critical section; a failure keeps the old row.
func (s *AllocationService) Replace(ctx context.Context, id string, in ReplaceInput) (*AllocationResult, error) {
	if err := validateAllocation(in.Quantity, in.Threshold); err != nil {
		return nil, err
	}

	var (
		previous *repository.Allocation
		result   *AllocationResult
	)
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		previous, err = s.allocations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		batch, err := s.batches.LockByID(ctx, previous.BatchID)
		if err != nil {
			return err
		}
		if err := s.allocations.Delete(ctx, id); err != nil {
			return err
		}

		var remaining int
		result, remaining, err = s.place(ctx, batch, AllocateInput{
			BatchID:   batch.ID,
			ShelfID:   in.ShelfID,
			Quantity:  in.Quantity,
			Threshold: in.Threshold,
		})
		if err != nil {
			return err
		}
		result.UnallocatedQuantity = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("previous_allocation_id", id).
		Str("allocation_id", result.Allocation.ID).
		Str("batch_id", result.Allocation.BatchID).
		Int("quantity", result.Allocation.AllocatedQty).
		Str("actor", actor.FromContext(ctx).String()).
		Msg("allocation replaced")
	s.publisher.PublishAllocationReplaced(ctx, previous, result.Allocation, result.UnallocatedQuantity)

	return result, nil
}

// Get gets an allocation by ID
func (s *AllocationService) Get(ctx context.Context, id string) (*repository.Allocation, error) {
	return s.allocations.GetByID(ctx, id)
}

// ListByBatch lists the allocations of a batch
func (s *AllocationService) ListByBatch(ctx context.Context, batchID string) ([]*repository.Allocation, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.allocations.ListByBatch(ctx, batchID)
}

// ListByShelf lists the allocations on a shelf
func (s *AllocationService) ListByShelf(ctx context.Context, shelfID string) ([]*repository.Allocation, error) {
	if _, err := s.shelves.GetByID(ctx, shelfID); err != nil {
		return nil, err
	}
	return s.allocations.ListByShelf(ctx, shelfID)
}

// UnallocatedQuantity reads a batch and its allocated sum in one statement
func (s *AllocationService) UnallocatedQuantity(ctx context.Context, batchID string) (*UnallocatedView, error) {
	b, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	remaining, err := unallocated(s.logger, b.ID, b.Quantity, b.AllocatedQuantity)
	if err != nil {
		return nil, err
	}
	return &UnallocatedView{
		BatchID:             b.ID,
		Quantity:            b.Quantity,
		AllocatedQuantity:   b.AllocatedQuantity,
		UnallocatedQuantity: remaining,
	}, nil
}

// DeleteBatch removes a batch together with all of its allocations. Both
// deletes happen under the batch lock in one transaction.
func (s *AllocationService) DeleteBatch(ctx context.Context, batchID string) error {
	var (
		batch    *repository.Batch
		removed  int
		released int
	)
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.LockByID(ctx, batchID)
		if err != nil {
			return err
		}
		removed, released, err = s.allocations.DeleteByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		return s.batches.Delete(ctx, batchID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("removed_allocations", removed).
		Int("released_quantity", released).
		Str("actor", actor.FromContext(ctx).String()).
		Msg("batch deleted")
	s.publisher.PublishBatchDeleted(ctx, batch, removed, released)
	return nil
}

func validateAllocation(quantity int, threshold *int) error {
	details := map[string]string{}
	if quantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if threshold != nil && *threshold < 0 {
		details["threshold"] = "must not be negative"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
