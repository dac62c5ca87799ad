// Package service holds the inventory business rules: the location registry,
// shelf store, batch ledger, allocation engine and dispense planner. Writes
// that must be atomic run inside database.DB.InTx; events are published only
// after the transaction commits.
package service

import (
	"strconv"
	"time"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// unallocated returns quantity minus allocated. A negative result means the
// conservation check was bypassed somewhere; it is logged with the internal
// numbers and reported to the caller as a generic internal error.
func unallocated(log *logger.Logger, batchID string, quantity, allocated int) (int, error) {
	remaining := quantity - allocated
	if remaining < 0 {
		log.Error().
			Str("batch_id", batchID).
			Int("quantity", quantity).
			Int("allocated", allocated).
			Msg("invariant violation: allocations exceed batch quantity")
		return 0, errors.InvariantViolation("batch " + batchID + " is over-allocated by " + itoa(-remaining))
	}
	return remaining, nil
}

// enrichBatch fills the derived fields of a batch read with its allocated sum
func enrichBatch(log *logger.Logger, classifier domain.ExpiryClassifier, b *repository.Batch, now time.Time) error {
	remaining, err := unallocated(log, b.ID, b.Quantity, b.AllocatedQuantity)
	if err != nil {
		return err
	}
	b.UnallocatedQuantity = remaining
	b.DaysToExpiry = domain.DaysToExpiry(b.ExpiryDate, now)
	b.Status = classifier.ClassifyDays(b.DaysToExpiry)
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
