package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventBatchReceived       = "inventory.batch.received"
	EventBatchDeleted        = "inventory.batch.deleted"
	EventBatchExpiring       = "inventory.batch.expiring"
	EventBatchExpired        = "inventory.batch.expired"
	EventAllocationCreated   = "inventory.allocation.created"
	EventAllocationRemoved   = "inventory.allocation.removed"
	EventAllocationReplaced  = "inventory.allocation.replaced"
	EventShelfBelowThreshold = "inventory.shelf.below_threshold"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	ActorID       string          `json:"actor_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID, actorID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		ActorID:       actorID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Batch events

// BatchReceivedEvent is published when a batch is recorded in the ledger
type BatchReceivedEvent struct {
	BatchID     string    `json:"batch_id"`
	ProductID   string    `json:"product_id"`
	LocationID  string    `json:"location_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

// BatchDeletedEvent is published after a batch and its allocations are removed
type BatchDeletedEvent struct {
	BatchID              string `json:"batch_id"`
	ProductID            string `json:"product_id"`
	LocationID           string `json:"location_id"`
	RemovedAllocations   int    `json:"removed_allocations"`
	ReleasedAllocatedQty int    `json:"released_allocated_qty"`
}

// BatchExpiryEvent is published by the expiry scanner for near-expiry and
// expired batches
type BatchExpiryEvent struct {
	BatchID      string    `json:"batch_id"`
	ProductID    string    `json:"product_id"`
	LocationID   string    `json:"location_id"`
	BatchNumber  string    `json:"batch_number"`
	ExpiryDate   time.Time `json:"expiry_date"`
	DaysToExpiry int       `json:"days_to_expiry"`
	Status       string    `json:"status"`
	Quantity     int       `json:"quantity"`
}

// Allocation events

// AllocationEvent is published when an allocation is created or removed
type AllocationEvent struct {
	AllocationID        string `json:"allocation_id"`
	BatchID             string `json:"batch_id"`
	ShelfID             string `json:"shelf_id"`
	AllocatedQty        int    `json:"allocated_qty"`
	UnallocatedQuantity int    `json:"unallocated_quantity"`
}

// AllocationReplacedEvent is published when an allocation is replaced by a new one
type AllocationReplacedEvent struct {
	PreviousAllocationID string `json:"previous_allocation_id"`
	AllocationID         string `json:"allocation_id"`
	BatchID              string `json:"batch_id"`
	PreviousShelfID      string `json:"previous_shelf_id"`
	ShelfID              string `json:"shelf_id"`
	PreviousQty          int    `json:"previous_qty"`
	AllocatedQty         int    `json:"allocated_qty"`
	UnallocatedQuantity  int    `json:"unallocated_quantity"`
}

// ShelfBelowThresholdEvent is published when an allocation holds no more than
// its reorder threshold
type ShelfBelowThresholdEvent struct {
	AllocationID string `json:"allocation_id"`
	BatchID      string `json:"batch_id"`
	ShelfID      string `json:"shelf_id"`
	AllocatedQty int    `json:"allocated_qty"`
	Threshold    int    `json:"threshold"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
