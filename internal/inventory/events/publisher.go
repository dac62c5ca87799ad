package events

import (
	"context"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/medflow/pharmacy-inventory/pkg/messaging"
)

// InventoryEventPublisher publishes inventory domain events. A nil publisher
// drops every event, so the service can run without a broker. Publish errors
// are logged and never returned: events go out after commit and cannot undo it.
type InventoryEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher declares the inventory exchange on rmq and
// returns a publisher for it
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps any EventPublisher. Used with test doubles.
func NewWithPublisher(p messaging.EventPublisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: p,
		logger:    log.WithComponent("events"),
	}
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType, key, id string, data any) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Str(key, id).Msg("failed to publish event")
	}
}

// PublishBatchReceived publishes a batch received event
func (p *InventoryEventPublisher) PublishBatchReceived(ctx context.Context, b *repository.Batch) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchReceived, "batch_id", b.ID, messaging.BatchReceivedEvent{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		LocationID:  b.LocationID,
		BatchNumber: b.BatchNumber,
		Quantity:    b.Quantity,
		ExpiryDate:  b.ExpiryDate,
	})
}

// PublishBatchDeleted publishes a batch deleted event
func (p *InventoryEventPublisher) PublishBatchDeleted(ctx context.Context, b *repository.Batch, removed, released int) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchDeleted, "batch_id", b.ID, messaging.BatchDeletedEvent{
		BatchID:              b.ID,
		ProductID:            b.ProductID,
		LocationID:           b.LocationID,
		RemovedAllocations:   removed,
		ReleasedAllocatedQty: released,
	})
}

// PublishBatchExpiry publishes inventory.batch.expiring or
// inventory.batch.expired depending on the batch's current status
func (p *InventoryEventPublisher) PublishBatchExpiry(ctx context.Context, b *repository.Batch) {
	if p == nil {
		return
	}
	eventType := messaging.EventBatchExpiring
	if b.Status == domain.StatusExpired {
		eventType = messaging.EventBatchExpired
	}
	p.publish(ctx, eventType, "batch_id", b.ID, messaging.BatchExpiryEvent{
		BatchID:      b.ID,
		ProductID:    b.ProductID,
		LocationID:   b.LocationID,
		BatchNumber:  b.BatchNumber,
		ExpiryDate:   b.ExpiryDate,
		DaysToExpiry: b.DaysToExpiry,
		Status:       string(b.Status),
		Quantity:     b.Quantity,
	})
}

// PublishAllocationCreated publishes an allocation created event
func (p *InventoryEventPublisher) PublishAllocationCreated(ctx context.Context, a *repository.Allocation, unallocated int) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventAllocationCreated, "allocation_id", a.ID, allocationEvent(a, unallocated))
}

// PublishAllocationRemoved publishes an allocation removed event
func (p *InventoryEventPublisher) PublishAllocationRemoved(ctx context.Context, a *repository.Allocation, unallocated int) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventAllocationRemoved, "allocation_id", a.ID, allocationEvent(a, unallocated))
}

// PublishAllocationReplaced publishes an allocation replaced event
func (p *InventoryEventPublisher) PublishAllocationReplaced(ctx context.Context, previous, current *repository.Allocation, unallocated int) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventAllocationReplaced, "allocation_id", current.ID, messaging.AllocationReplacedEvent{
		PreviousAllocationID: previous.ID,
		AllocationID:         current.ID,
		BatchID:              current.BatchID,
		PreviousShelfID:      previous.ShelfID,
		ShelfID:              current.ShelfID,
		PreviousQty:          previous.AllocatedQty,
		AllocatedQty:         current.AllocatedQty,
		UnallocatedQuantity:  unallocated,
	})
}

// PublishShelfBelowThreshold publishes a low shelf stock event
func (p *InventoryEventPublisher) PublishShelfBelowThreshold(ctx context.Context, row *repository.ThresholdRow) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventShelfBelowThreshold, "allocation_id", row.AllocationID, messaging.ShelfBelowThresholdEvent{
		AllocationID: row.AllocationID,
		BatchID:      row.BatchID,
		ShelfID:      row.ShelfID,
		AllocatedQty: row.AllocatedQty,
		Threshold:    row.Threshold,
	})
}

func allocationEvent(a *repository.Allocation, unallocated int) messaging.AllocationEvent {
	return messaging.AllocationEvent{
		AllocationID:        a.ID,
		BatchID:             a.BatchID,
		ShelfID:             a.ShelfID,
		AllocatedQty:        a.AllocatedQty,
		UnallocatedQuantity: unallocated,
	}
}

