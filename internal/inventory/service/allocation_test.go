package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	apperrors "github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/messaging"
	"github.com/medflow/pharmacy-inventory/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationService_Allocate(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	expectShelf(mockDB, "shelf-1", "loc-1")
	expectAllocatedSum(mockDB, "batch-1", 300)
	mockDB.ExpectQuery("INSERT INTO shelf_allocations").
		WithArgs(testutil.AnyUUID{}, "batch-1", "shelf-1", 150, nil).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	result, err := svc.allocations.Allocate(context.Background(), service.AllocateInput{
		BatchID:  "batch-1",
		ShelfID:  "shelf-1",
		Quantity: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, 150, result.Allocation.AllocatedQty)
	assert.Equal(t, 50, result.UnallocatedQuantity)
	mockDB.ExpectationsWereMet(t)

	event := svc.publisher.AssertEventPublished(t, messaging.EventAllocationCreated)
	payload, ok := event.Payload.(messaging.AllocationEvent)
	require.True(t, ok)
	assert.Equal(t, 50, payload.UnallocatedQuantity)
}

func TestAllocationService_Allocate_ExceedsBatch(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	expectShelf(mockDB, "shelf-1", "loc-1")
	expectAllocatedSum(mockDB, "batch-1", 0)
	mockDB.ExpectRollback()

	result, err := svc.allocations.Allocate(context.Background(), service.AllocateInput{
		BatchID:  "batch-1",
		ShelfID:  "shelf-1",
		Quantity: 600,
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientQuantity))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "500", appErr.Details["available"])
	mockDB.ExpectationsWereMet(t)
	svc.publisher.AssertNoEventsPublished(t)
}

func TestAllocationService_Allocate_CrossLocation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	expectShelf(mockDB, "shelf-9", "loc-2")
	mockDB.ExpectRollback()

	_, err := svc.allocations.Allocate(context.Background(), service.AllocateInput{
		BatchID:  "batch-1",
		ShelfID:  "shelf-9",
		Quantity: 10,
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidReference))
	mockDB.ExpectationsWereMet(t)
}

func TestAllocationService_Allocate_OverAllocatedBatch(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	expectShelf(mockDB, "shelf-1", "loc-1")
	expectAllocatedSum(mockDB, "batch-1", 620)
	mockDB.ExpectRollback()

	_, err := svc.allocations.Allocate(context.Background(), service.AllocateInput{
		BatchID:  "batch-1",
		ShelfID:  "shelf-1",
		Quantity: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvariantViolation))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.NotContains(t, appErr.Message, "620", "internal numbers stay out of the client message")
	mockDB.ExpectationsWereMet(t)
}

func TestAllocationService_Allocate_Validation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	_, err := svc.allocations.Allocate(context.Background(), service.AllocateInput{
		BatchID:   "batch-1",
		ShelfID:   "shelf-1",
		Quantity:  0,
		Threshold: testutil.PtrInt(-1),
	})

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Details, "quantity")
	assert.Contains(t, appErr.Details, "threshold")
	mockDB.ExpectationsWereMet(t)
}

func TestAllocationService_Allocate_BatchNotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM batches b WHERE b.id = $1 FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows(batchLockCols...))
	mockDB.ExpectRollback()

	_, err := svc.allocations.Allocate(context.Background(), service.AllocateInput{
		BatchID:  "missing",
		ShelfID:  "shelf-1",
		Quantity: 1,
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestAllocationService_Deallocate(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM shelf_allocations WHERE id = $1").
		WithArgs("alloc-1").
		WillReturnRows(testutil.MockRows(allocationCols...).AddRow("alloc-1", "batch-1", "shelf-1", 120, nil, time.Now()))
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	mockDB.ExpectExec("DELETE FROM shelf_allocations WHERE id = $1").
		WithArgs("alloc-1").
		WillReturnResult(sqlmockResult(1))
	expectAllocatedSum(mockDB, "batch-1", 80)
	mockDB.ExpectCommit()

	err := svc.allocations.Deallocate(context.Background(), "alloc-1")
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)

	event := svc.publisher.AssertEventPublished(t, messaging.EventAllocationRemoved)
	payload := event.Payload.(messaging.AllocationEvent)
	assert.Equal(t, 120, payload.AllocatedQty)
	assert.Equal(t, 420, payload.UnallocatedQuantity)
}

func TestAllocationService_Deallocate_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM shelf_allocations WHERE id = $1").
		WithArgs("alloc-1").
		WillReturnRows(testutil.MockRows(allocationCols...))
	mockDB.ExpectRollback()

	err := svc.allocations.Deallocate(context.Background(), "alloc-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
	svc.publisher.AssertNoEventsPublished(t)
}

func TestAllocationService_Replace_KeepsOldOnFailure(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM shelf_allocations WHERE id = $1").
		WithArgs("alloc-1").
		WillReturnRows(testutil.MockRows(allocationCols...).AddRow("alloc-1", "batch-1", "shelf-1", 100, nil, time.Now()))
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	mockDB.ExpectExec("DELETE FROM shelf_allocations WHERE id = $1").
		WithArgs("alloc-1").
		WillReturnResult(sqlmockResult(1))
	expectShelf(mockDB, "shelf-2", "loc-1")
	// 350 held by other allocations once alloc-1 is gone
	expectAllocatedSum(mockDB, "batch-1", 350)
	mockDB.ExpectRollback()

	_, err := svc.allocations.Replace(context.Background(), "alloc-1", service.ReplaceInput{
		ShelfID:  "shelf-2",
		Quantity: 200,
	})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientQuantity))
	mockDB.ExpectationsWereMet(t)
	svc.publisher.AssertNoEventsPublished(t)
}

func TestAllocationService_DeleteBatch(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	mockDB.ExpectQuery("DELETE FROM shelf_allocations WHERE batch_id = $1 RETURNING allocated_qty").
		WithArgs("batch-1").
		WillReturnRows(testutil.MockRows("count", "sum").AddRow(2, 350))
	mockDB.ExpectExec("DELETE FROM batches WHERE id = $1").
		WithArgs("batch-1").
		WillReturnResult(sqlmockResult(1))
	mockDB.ExpectCommit()

	err := svc.allocations.DeleteBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)

	event := svc.publisher.AssertEventPublished(t, messaging.EventBatchDeleted)
	payload := event.Payload.(messaging.BatchDeletedEvent)
	assert.Equal(t, 2, payload.RemovedAllocations)
	assert.Equal(t, 350, payload.ReleasedAllocatedQty)
}

func TestAllocationService_DeleteBatch_RollsBackAllocations(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	mockDB.ExpectBegin()
	expectBatchLock(mockDB, "batch-1", "loc-1", 500)
	mockDB.ExpectQuery("DELETE FROM shelf_allocations WHERE batch_id = $1 RETURNING allocated_qty").
		WithArgs("batch-1").
		WillReturnRows(testutil.MockRows("count", "sum").AddRow(2, 350))
	mockDB.ExpectExec("DELETE FROM batches WHERE id = $1").
		WithArgs("batch-1").
		WillReturnError(errors.New("connection reset"))
	mockDB.ExpectRollback()

	err := svc.allocations.DeleteBatch(context.Background(), "batch-1")
	require.Error(t, err)
	mockDB.ExpectationsWereMet(t)
	svc.publisher.AssertNoEventsPublished(t)
}

func TestAllocationService_UnallocatedQuantity(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newServices(mockDB.Database(), time.Now())

	now := time.Now()
	mockDB.ExpectQuery("FROM batches b WHERE b.id = $1").
		WithArgs("batch-1").
		WillReturnRows(testutil.MockRows(append(batchLockCols, "allocated_quantity")...).AddRow(
			"batch-1", "prod-1", "loc-1", nil, "LOT-1", 500, nil,
			nil, now.AddDate(1, 0, 0), nil, nil, nil,
			"store", nil, now, now, 320,
		))

	view, err := svc.allocations.UnallocatedQuantity(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, &service.UnallocatedView{
		BatchID:             "batch-1",
		Quantity:            500,
		AllocatedQuantity:   320,
		UnallocatedQuantity: 180,
	}, view)
	mockDB.ExpectationsWereMet(t)
}
