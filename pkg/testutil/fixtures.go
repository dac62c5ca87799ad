package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FixtureFactory hands out unique, readable values for test records
type FixtureFactory struct {
	mu       sync.Mutex
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

// LocationName returns a unique location name
func (f *FixtureFactory) LocationName() string {
	return fmt.Sprintf("Branch %03d", f.nextSeq())
}

// ProductID returns a unique opaque product id
func (f *FixtureFactory) ProductID() string {
	return "prod-" + uuid.New().String()[:8]
}

// SupplierID returns a unique opaque supplier id
func (f *FixtureFactory) SupplierID() string {
	return fmt.Sprintf("sup-%04d", f.nextSeq())
}

// BatchNumber returns a unique lot number
func (f *FixtureFactory) BatchNumber() string {
	return fmt.Sprintf("LOT-%s-%04d", time.Now().UTC().Format("0601"), f.nextSeq())
}

// ExpiryIn returns midnight UTC days from now
func (f *FixtureFactory) ExpiryIn(days int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}
