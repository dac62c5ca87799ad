package service

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/events"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/actor"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/shopspring/decimal"
)

// BatchService is the batch ledger. Batch status is never stored: every read
// classifies the expiry date against the current time.
type BatchService struct {
	db          *database.DB
	batches     *repository.BatchRepository
	locations   *repository.LocationRepository
	allocations *repository.AllocationRepository
	classifier  domain.ExpiryClassifier
	publisher   *events.InventoryEventPublisher
	clock       Clock
	logger      *logger.Logger
}

// NewBatchService creates a new batch service
func NewBatchService(
	db *database.DB,
	batches *repository.BatchRepository,
	locations *repository.LocationRepository,
	allocations *repository.AllocationRepository,
	classifier domain.ExpiryClassifier,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *BatchService {
	return &BatchService{
		db:          db,
		batches:     batches,
		locations:   locations,
		allocations: allocations,
		classifier:  classifier,
		publisher:   publisher,
		clock:       systemClock,
		logger:      log.WithComponent("batch_service"),
	}
}

// WithClock replaces the service clock
func (s *BatchService) WithClock(clock Clock) *BatchService {
	s.clock = clock
	return s
}

// BatchPatch carries the fields to change. Quantity is immutable and has no
// field here.
type BatchPatch struct {
	ProductID         *string
	LocationID        *string
	SupplierID        *string
	BatchNumber       *string
	Cost              *decimal.Decimal
	ManufacturingDate *time.Time
	ExpiryDate        *time.Time
	ReceivingDate     *time.Time
	AlertDate         *time.Time
	ClearanceDate     *time.Time
	StockType         *domain.StockType
	ParentBatchID     *string
}

// BatchListFilter is the repository filter plus a derived status
type BatchListFilter struct {
	repository.BatchFilter
	Status domain.ExpiryStatus
}

// BatchClassification is the expiry classification of one batch
type BatchClassification struct {
	BatchID        string              `json:"batch_id"`
	ExpiryDate     time.Time           `json:"expiry_date"`
	DaysToExpiry   int                 `json:"days_to_expiry"`
	Status         domain.ExpiryStatus `json:"status"`
	NearExpiryDays int                 `json:"near_expiry_days"`
	ClassifiedAt   time.Time           `json:"classified_at"`
}

// Create records a received batch
func (s *BatchService) Create(ctx context.Context, b *repository.Batch) (*repository.Batch, error) {
	if b.StockType == "" {
		b.StockType = domain.StockStore
	}
	if err := validateBatch(b, true); err != nil {
		return nil, err
	}

	exists, err := s.locations.Exists(ctx, b.LocationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("location")
	}
	if err := s.checkParentBatch(ctx, b); err != nil {
		return nil, err
	}

	if err := s.batches.Create(ctx, b); err != nil {
		return nil, err
	}

	created, err := s.Get(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", created.ID).
		Str("product_id", created.ProductID).
		Str("location_id", created.LocationID).
		Int("quantity", created.Quantity).
		Str("actor", actor.FromContext(ctx).String()).
		Msg("batch received")
	s.publisher.PublishBatchReceived(ctx, created)

	return created, nil
}

// Get gets a batch with its derived fields
func (s *BatchService) Get(ctx context.Context, id string) (*repository.Batch, error) {
	b, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := enrichBatch(s.logger, s.classifier, b, s.clock()); err != nil {
		return nil, err
	}
	return b, nil
}

// List lists batches. A status filter is translated into an expiry range so
// that pagination and totals stay correct.
func (s *BatchService) List(ctx context.Context, filter BatchListFilter) ([]*repository.Batch, int64, error) {
	now := s.clock()
	f := filter.BatchFilter
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, errors.Validation(map[string]string{
				"status": "must be one of: available, nearExpiry, expired",
			})
		}
		r := s.classifier.Range(filter.Status, now)
		f.ExpiryAfter = r.After
		f.ExpiryNotAfter = r.NotAfter
	}

	batches, total, err := s.batches.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	for _, b := range batches {
		if err := enrichBatch(s.logger, s.classifier, b, now); err != nil {
			return nil, 0, err
		}
	}
	return batches, total, nil
}

// Classify returns the current expiry classification of a batch
func (s *BatchService) Classify(ctx context.Context, id string) (*BatchClassification, error) {
	b, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	days := domain.DaysToExpiry(b.ExpiryDate, now)
	return &BatchClassification{
		BatchID:        b.ID,
		ExpiryDate:     b.ExpiryDate,
		DaysToExpiry:   days,
		Status:         s.classifier.ClassifyDays(days),
		NearExpiryDays: s.classifier.NearExpiryDays,
		ClassifiedAt:   now,
	}, nil
}

// Update applies patch under the batch lock. Moving a batch to another
// location is refused while any of its stock sits on shelves.
func (s *BatchService) Update(ctx context.Context, id string, patch BatchPatch) (*repository.Batch, error) {
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		b, err := s.batches.LockByID(ctx, id)
		if err != nil {
			return err
		}

		previousLocation := b.LocationID
		applyBatchPatch(b, patch)
		if err := validateBatch(b, false); err != nil {
			return err
		}

		if b.LocationID != previousLocation {
			allocated, err := s.allocations.SumByBatch(ctx, id)
			if err != nil {
				return err
			}
			if allocated > 0 {
				return errors.Conflict("batch has allocated stock at its current location")
			}
			exists, err := s.locations.Exists(ctx, b.LocationID)
			if err != nil {
				return err
			}
			if !exists {
				return errors.NotFound("location")
			}
		}
		if patch.ParentBatchID != nil || patch.ProductID != nil {
			if err := s.checkParentBatch(ctx, b); err != nil {
				return err
			}
		}

		return s.batches.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", id).Msg("batch updated")
	return s.Get(ctx, id)
}

// checkParentBatch requires the parent batch to exist and carry the same product
func (s *BatchService) checkParentBatch(ctx context.Context, b *repository.Batch) error {
	if b.ParentBatchID == nil {
		return nil
	}
	if b.ID != "" && *b.ParentBatchID == b.ID {
		return errors.InvalidReference("a batch cannot be its own parent")
	}

	parent, err := s.batches.GetByID(ctx, *b.ParentBatchID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.InvalidReference("parent batch does not exist")
		}
		return err
	}
	if parent.ProductID != b.ProductID {
		return errors.InvalidReference("parent batch belongs to a different product")
	}
	return nil
}

func applyBatchPatch(b *repository.Batch, p BatchPatch) {
	if p.ProductID != nil {
		b.ProductID = *p.ProductID
	}
	if p.LocationID != nil {
		b.LocationID = *p.LocationID
	}
	if p.SupplierID != nil {
		b.SupplierID = emptyToNil(*p.SupplierID)
	}
	if p.BatchNumber != nil {
		b.BatchNumber = *p.BatchNumber
	}
	if p.Cost != nil {
		b.Cost = decimal.NewNullDecimal(*p.Cost)
	}
	if p.ManufacturingDate != nil {
		b.ManufacturingDate = p.ManufacturingDate
	}
	if p.ExpiryDate != nil {
		b.ExpiryDate = *p.ExpiryDate
	}
	if p.ReceivingDate != nil {
		b.ReceivingDate = p.ReceivingDate
	}
	if p.AlertDate != nil {
		b.AlertDate = p.AlertDate
	}
	if p.ClearanceDate != nil {
		b.ClearanceDate = p.ClearanceDate
	}
	if p.StockType != nil {
		b.StockType = *p.StockType
	}
	if p.ParentBatchID != nil {
		b.ParentBatchID = emptyToNil(*p.ParentBatchID)
	}
}

func validateBatch(b *repository.Batch, creating bool) error {
	details := map[string]string{}
	if b.ProductID == "" {
		details["product_id"] = "product_id is required"
	}
	if b.LocationID == "" {
		details["location_id"] = "location_id is required"
	}
	if creating && b.Quantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if b.ExpiryDate.IsZero() {
		details["expiry_date"] = "expiry_date is required"
	}
	if !b.StockType.Valid() {
		details["stock_type"] = "must be one of: store, pharmacy, quarantine, external"
	}
	if b.Cost.Valid && b.Cost.Decimal.IsNegative() {
		details["cost"] = "must not be negative"
	}
	if b.ManufacturingDate != nil && !b.ExpiryDate.IsZero() && b.ManufacturingDate.After(b.ExpiryDate) {
		details["manufacturing_date"] = "must not be after expiry_date"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
