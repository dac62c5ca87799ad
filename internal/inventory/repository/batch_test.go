package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var batchCols = []string{
	"id", "product_id", "location_id", "supplier_id", "batch_number", "quantity", "cost",
	"manufacturing_date", "expiry_date", "receiving_date", "alert_date", "clearance_date",
	"stock_type", "parent_batch_id", "created_at", "updated_at", "allocated_quantity",
}

func TestBatchRepository_GetByID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	now := time.Now()
	expiry := testutil.Date(2026, time.March, 1)
	mockDB.ExpectQuery("FROM batches b WHERE b.id = $1").
		WithArgs("batch-1").
		WillReturnRows(testutil.MockRows(batchCols...).AddRow(
			"batch-1", "prod-1", "loc-1", nil, "LOT-7", 500, "12.5000",
			nil, expiry, nil, nil, nil,
			"pharmacy", nil, now, now, 320,
		))

	b, err := repo.GetByID(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 500, b.Quantity)
	assert.Equal(t, 320, b.AllocatedQuantity)
	assert.Equal(t, domain.StockPharmacy, b.StockType)
	require.True(t, b.Cost.Valid)
	assert.True(t, b.Cost.Decimal.Equal(decimal.RequireFromString("12.5")))
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_LockByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	mockDB.ExpectQuery("FROM batches b WHERE b.id = $1 FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows(batchCols[:16]...))

	b, err := repo.LockByID(context.Background(), "missing")
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_Create_CheckViolation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	mockDB.ExpectQuery("INSERT INTO batches").
		WillReturnError(&pq.Error{Code: "23514", Constraint: "batches_manufacturing_before_expiry"})

	err := repo.Create(context.Background(), &repository.Batch{
		ProductID:  "prod-1",
		LocationID: "loc-1",
		Quantity:   10,
		ExpiryDate: testutil.Date(2025, time.January, 1),
		StockType:  domain.StockStore,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_List_ExpiryRange(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	after := testutil.Date(2025, time.January, 1)
	notAfter := testutil.Date(2025, time.April, 1)

	mockDB.ExpectQuery("SELECT COUNT(*) FROM batches b WHERE b.product_id = $1 AND b.expiry_date > $2 AND b.expiry_date <= $3").
		WithArgs("prod-1", after, notAfter).
		WillReturnRows(testutil.MockRows("count").AddRow(0))
	mockDB.ExpectQuery("ORDER BY b.expiry_date, b.id LIMIT $4 OFFSET $5").
		WithArgs("prod-1", after, notAfter, 10, 10).
		WillReturnRows(testutil.MockRows(batchCols...))

	batches, total, err := repo.List(context.Background(), repository.BatchFilter{
		ProductID:      "prod-1",
		ExpiryAfter:    &after,
		ExpiryNotAfter: &notAfter,
		Limit:          10,
		Offset:         10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, batches)
	assert.NotNil(t, batches)
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_List_ExpiryBeforeIncludesCutoffDay(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	cutoff := testutil.Date(2025, time.June, 1)

	mockDB.ExpectQuery("SELECT COUNT(*) FROM batches b WHERE b.expiry_date <= $1").
		WithArgs(cutoff).
		WillReturnRows(testutil.MockRows("count").AddRow(1))
	mockDB.ExpectQuery("WHERE b.expiry_date <= $1 ORDER BY b.expiry_date, b.id LIMIT $2 OFFSET $3").
		WithArgs(cutoff, 20, 0).
		WillReturnRows(testutil.MockRows(batchCols...))

	_, total, err := repo.List(context.Background(), repository.BatchFilter{
		ExpiryBefore: testutil.PtrTime(cutoff),
		Limit:        20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	mockDB.ExpectationsWereMet(t)
}
