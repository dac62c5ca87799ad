package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	apperrors "github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/messaging"
	"github.com/medflow/pharmacy-inventory/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// stockFixture is one location with a shelf and a product id
type stockFixture struct {
	location *repository.Location
	shelf    *repository.Shelf
	product  string
}

func newStockFixture(t *testing.T, ctx context.Context, svc *services) stockFixture {
	t.Helper()
	loc := &repository.Location{Name: suite.Fixtures.LocationName(), Type: domain.LocationBranch}
	require.NoError(t, svc.locations.Create(ctx, loc))

	shelf, err := svc.shelves.Create(ctx, loc.ID, domain.DispatchFEFO)
	require.NoError(t, err)

	return stockFixture{location: loc, shelf: shelf, product: suite.Fixtures.ProductID()}
}

func receiveBatch(t *testing.T, ctx context.Context, svc *services, f stockFixture, quantity int, expiry time.Time) *repository.Batch {
	t.Helper()
	b, err := svc.batches.Create(ctx, &repository.Batch{
		ProductID:   f.product,
		LocationID:  f.location.ID,
		BatchNumber: suite.Fixtures.BatchNumber(),
		Quantity:    quantity,
		ExpiryDate:  expiry,
	})
	require.NoError(t, err)
	return b
}

func TestAllocate_ConcurrentRequestsNeverOverAllocate(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	f := newStockFixture(t, ctx, svc)
	batch := receiveBatch(t, ctx, svc, f, 100, suite.Fixtures.ExpiryIn(365))

	var succeeded, insufficient atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := svc.allocations.Allocate(gctx, service.AllocateInput{
				BatchID:  batch.ID,
				ShelfID:  f.shelf.ID,
				Quantity: 15,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperrors.ErrInsufficientQuantity):
				insufficient.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(6), succeeded.Load())
	assert.Equal(t, int32(4), insufficient.Load())

	view, err := svc.allocations.UnallocatedQuantity(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, view.AllocatedQuantity)
	assert.Equal(t, 10, view.UnallocatedQuantity)
}

func TestAllocate_RoundTripRestoresUnallocated(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	f := newStockFixture(t, ctx, svc)
	batch := receiveBatch(t, ctx, svc, f, 500, suite.Fixtures.ExpiryIn(365))

	before, err := svc.allocations.UnallocatedQuantity(ctx, batch.ID)
	require.NoError(t, err)

	result, err := svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: f.shelf.ID, Quantity: 120})
	require.NoError(t, err)
	assert.Equal(t, 380, result.UnallocatedQuantity)

	shelf, err := svc.shelves.Get(ctx, f.shelf.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, shelf.OnHandQuantity)

	require.NoError(t, svc.allocations.Deallocate(ctx, result.Allocation.ID))

	after, err := svc.allocations.UnallocatedQuantity(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UnallocatedQuantity, after.UnallocatedQuantity)

	err = svc.allocations.Deallocate(ctx, result.Allocation.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAllocate_RejectsOverAllocationAndCrossLocation(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	f := newStockFixture(t, ctx, svc)
	other := newStockFixture(t, ctx, svc)
	batch := receiveBatch(t, ctx, svc, f, 500, suite.Fixtures.ExpiryIn(365))

	_, err := svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: f.shelf.ID, Quantity: 600})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientQuantity))

	_, err = svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: other.shelf.ID, Quantity: 10})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidReference))

	allocations, err := svc.allocations.ListByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, allocations)
}

func TestReplace_RevalidatesAgainstOtherAllocations(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	f := newStockFixture(t, ctx, svc)
	batch := receiveBatch(t, ctx, svc, f, 100, suite.Fixtures.ExpiryIn(365))

	first, err := svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: f.shelf.ID, Quantity: 60})
	require.NoError(t, err)
	_, err = svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: f.shelf.ID, Quantity: 30})
	require.NoError(t, err)

	// 60 -> 80 would put 110 on a batch of 100
	_, err = svc.allocations.Replace(ctx, first.Allocation.ID, service.ReplaceInput{ShelfID: f.shelf.ID, Quantity: 80})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientQuantity))

	kept, err := svc.allocations.Get(ctx, first.Allocation.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, kept.AllocatedQty)

	replaced, err := svc.allocations.Replace(ctx, first.Allocation.ID, service.ReplaceInput{ShelfID: f.shelf.ID, Quantity: 70})
	require.NoError(t, err)
	assert.Equal(t, 0, replaced.UnallocatedQuantity)
	svc.publisher.AssertEventPublished(t, messaging.EventAllocationReplaced)
}

func TestDeleteBatch_RemovesAllocationsAtomically(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	f := newStockFixture(t, ctx, svc)
	second, err := svc.shelves.Create(ctx, f.location.ID, domain.DispatchFIFO)
	require.NoError(t, err)
	batch := receiveBatch(t, ctx, svc, f, 200, suite.Fixtures.ExpiryIn(365))

	_, err = svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: f.shelf.ID, Quantity: 50})
	require.NoError(t, err)
	_, err = svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: second.ID, Quantity: 70})
	require.NoError(t, err)

	require.NoError(t, svc.allocations.DeleteBatch(ctx, batch.ID))

	_, err = svc.batches.Get(ctx, batch.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	remaining, err := svc.allocations.ListByShelf(ctx, f.shelf.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	remaining, err = svc.allocations.ListByShelf(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	event := svc.publisher.AssertEventPublished(t, messaging.EventBatchDeleted)
	assert.Equal(t, 2, event.Payload.(messaging.BatchDeletedEvent).RemovedAllocations)

	// both shelves are empty again and can go
	require.NoError(t, svc.shelves.Delete(ctx, second.ID))
}

func TestShelfDelete_BlockedByAllocations(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	f := newStockFixture(t, ctx, svc)
	batch := receiveBatch(t, ctx, svc, f, 10, suite.Fixtures.ExpiryIn(365))
	_, err := svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: batch.ID, ShelfID: f.shelf.ID, Quantity: 10})
	require.NoError(t, err)

	err = svc.shelves.Delete(ctx, f.shelf.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	err = svc.locations.Delete(ctx, f.location.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestLocationUpdate_RejectsCycles(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	svc := newServices(db, time.Now().UTC())

	root := &repository.Location{Name: "Root", Type: domain.LocationWarehouse}
	require.NoError(t, svc.locations.Create(ctx, root))
	child := &repository.Location{Name: "Child", Type: domain.LocationBranch, ParentLocationID: &root.ID}
	require.NoError(t, svc.locations.Create(ctx, child))
	grandchild := &repository.Location{Name: "Grandchild", Type: domain.LocationClinic, ParentLocationID: &child.ID}
	require.NoError(t, svc.locations.Create(ctx, grandchild))

	_, err := svc.locations.Update(ctx, root.ID, service.LocationPatch{ParentLocationID: &grandchild.ID})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidReference))

	_, err = svc.locations.Update(ctx, root.ID, service.LocationPatch{ParentLocationID: &root.ID})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidReference))

	missing := "6f1c2b9e-8d7a-4e43-9c1b-2a3d4e5f6a7b"
	_, err = svc.locations.Update(ctx, child.ID, service.LocationPatch{ParentLocationID: &missing})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidReference))

	// moving the grandchild directly under root is fine
	moved, err := svc.locations.Update(ctx, grandchild.ID, service.LocationPatch{ParentLocationID: &root.ID})
	require.NoError(t, err)
	assert.Equal(t, root.ID, *moved.ParentLocationID)

	err = svc.locations.Delete(ctx, root.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestDispensePlan_FEFOAcrossBatches(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	now := time.Date(2024, time.November, 1, 12, 0, 0, 0, time.UTC)
	svc := newServices(db, now)

	f := newStockFixture(t, ctx, svc)
	for _, expiry := range []time.Time{
		testutil.Date(2025, time.January, 1),
		testutil.Date(2025, time.June, 1),
		testutil.Date(2024, time.December, 1),
	} {
		b := receiveBatch(t, ctx, svc, f, 30, expiry)
		_, err := svc.allocations.Allocate(ctx, service.AllocateInput{BatchID: b.ID, ShelfID: f.shelf.ID, Quantity: 30})
		require.NoError(t, err)
	}

	plan, err := svc.dispense.Plan(ctx, service.DispenseInput{
		ProductID:   f.product,
		LocationID:  f.location.ID,
		RequiredQty: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchFEFO, plan.Method)
	require.Len(t, plan.Draws, 3)
	assert.Equal(t, testutil.Date(2024, time.December, 1), plan.Draws[0].ExpiryDate.UTC())
	assert.Equal(t, testutil.Date(2025, time.January, 1), plan.Draws[1].ExpiryDate.UTC())
	assert.Equal(t, testutil.Date(2025, time.June, 1), plan.Draws[2].ExpiryDate.UTC())
	assert.Equal(t, 90, plan.FulfilledQty)
	assert.Equal(t, 10, plan.Shortfall)
	assert.True(t, plan.Partial)
}

func TestBatchList_StatusFilter(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	db := suite.SetupSchema(t, ctx, migrate)
	now := time.Now().UTC()
	svc := newServices(db, now)

	f := newStockFixture(t, ctx, svc)
	expired := receiveBatch(t, ctx, svc, f, 10, suite.Fixtures.ExpiryIn(-10))
	near := receiveBatch(t, ctx, svc, f, 10, suite.Fixtures.ExpiryIn(30))
	fresh := receiveBatch(t, ctx, svc, f, 10, suite.Fixtures.ExpiryIn(200))

	cases := map[domain.ExpiryStatus]string{
		domain.StatusExpired:    expired.ID,
		domain.StatusNearExpiry: near.ID,
		domain.StatusAvailable:  fresh.ID,
	}
	for status, id := range cases {
		batches, total, err := svc.batches.List(ctx, service.BatchListFilter{
			BatchFilter: repository.BatchFilter{ProductID: f.product, Limit: 10},
			Status:      status,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), total, "status %s", status)
		assert.Equal(t, id, batches[0].ID)
		assert.Equal(t, status, batches[0].Status)
	}

	report, err := svc.scanner.ScanAll(ctx)
	require.NoError(t, err)
	// only allocated stock is scanned
	assert.Zero(t, report.Expired+report.NearExpiry)
}
