package repository_test

import (
	"context"
	"testing"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stockLevelCols = []string{
	"product_id", "location_id", "stock_type", "batch_count", "total_quantity", "allocated_quantity", "dispatch_methods",
}

func TestBatchRepository_StockLevels(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	mockDB.ExpectQuery("a ON a.batch_id = b.id WHERE b.product_id = $1 AND b.location_id = $2 GROUP BY b.product_id, b.location_id, b.stock_type").
		WithArgs("prod-1", "loc-1").
		WillReturnRows(testutil.MockRows(stockLevelCols...).
			AddRow("prod-1", "loc-1", "pharmacy", 1, 40, 0, "{}").
			AddRow("prod-1", "loc-1", "store", 3, 500, 320, "{FEFO,FIFO}"))

	rows, err := repo.StockLevels(context.Background(), repository.StockLevelFilter{ProductID: "prod-1", LocationID: "loc-1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.StockPharmacy, rows[0].StockType)
	assert.Empty(t, rows[0].DispatchMethods)

	assert.Equal(t, domain.StockStore, rows[1].StockType)
	assert.Equal(t, 3, rows[1].BatchCount)
	assert.Equal(t, 500, rows[1].TotalQuantity)
	assert.Equal(t, 320, rows[1].AllocatedQuantity)
	assert.Equal(t, []string{"FEFO", "FIFO"}, []string(rows[1].DispatchMethods))
	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_StockLevels_StockTypeOnly(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewBatchRepository(mockDB.Database())

	mockDB.ExpectQuery("WHERE b.stock_type = $1 GROUP BY").
		WithArgs("quarantine").
		WillReturnRows(testutil.MockRows(stockLevelCols...))

	rows, err := repo.StockLevels(context.Background(), repository.StockLevelFilter{StockType: domain.StockQuarantine})
	require.NoError(t, err)
	assert.Empty(t, rows)
	mockDB.ExpectationsWereMet(t)
}
