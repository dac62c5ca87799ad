package service_test

import (
	"context"
	"database/sql/driver"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/events"
	"github.com/medflow/pharmacy-inventory/internal/inventory/migrations"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/medflow/pharmacy-inventory/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	if !testing.Short() {
		var err error
		suite, err = testutil.NewIntegrationSuite(ctx)
		if err != nil {
			log.Fatalf("failed to create integration suite: %v", err)
		}
	}

	code := m.Run()

	if suite != nil {
		suite.Cleanup(ctx)
		testutil.TerminateContainer(ctx)
	}
	os.Exit(code)
}

func migrate(ctx context.Context, db *database.DB) error {
	return migrations.Run(ctx, db, logger.Nop())
}

// services bundles every inventory service over one database handle
type services struct {
	locations   *service.LocationService
	shelves     *service.ShelfService
	batches     *service.BatchService
	allocations *service.AllocationService
	dispense    *service.DispenseService
	stockLevels *service.StockLevelService
	scanner     *service.ExpiryScanner
	publisher   *testutil.MockPublisher
}

func newServices(db *database.DB, now time.Time) *services {
	log := logger.Nop()
	pub := testutil.NewMockPublisher()
	publisher := events.NewWithPublisher(pub, log)
	classifier := domain.NewExpiryClassifier(domain.DefaultNearExpiryDays)
	clock := func() time.Time { return now }

	locationRepo := repository.NewLocationRepository(db)
	shelfRepo := repository.NewShelfRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)

	return &services{
		locations:   service.NewLocationService(db, locationRepo, log),
		shelves:     service.NewShelfService(db, shelfRepo, locationRepo, log),
		batches:     service.NewBatchService(db, batchRepo, locationRepo, allocationRepo, classifier, publisher, log).WithClock(clock),
		allocations: service.NewAllocationService(db, batchRepo, shelfRepo, allocationRepo, publisher, log),
		dispense:    service.NewDispenseService(locationRepo, allocationRepo, classifier, log).WithClock(clock),
		stockLevels: service.NewStockLevelService(batchRepo, locationRepo, log),
		scanner:     service.NewExpiryScanner(batchRepo, allocationRepo, classifier, publisher, log).WithClock(clock),
		publisher:   pub,
	}
}

var batchLockCols = []string{
	"id", "product_id", "location_id", "supplier_id", "batch_number", "quantity", "cost",
	"manufacturing_date", "expiry_date", "receiving_date", "alert_date", "clearance_date",
	"stock_type", "parent_batch_id", "created_at", "updated_at",
}

var shelfCols = []string{
	"id", "location_id", "location_name", "dispatch_method", "on_hand_quantity", "created_at", "updated_at",
}

var allocationCols = []string{"id", "batch_id", "shelf_id", "allocated_qty", "threshold", "created_at"}

func expectBatchLock(mockDB *testutil.MockDB, id, locationID string, quantity int) {
	now := time.Now()
	mockDB.ExpectQuery("FROM batches b WHERE b.id = $1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(testutil.MockRows(batchLockCols...).AddRow(
			id, "prod-1", locationID, nil, "LOT-1", quantity, nil,
			nil, now.AddDate(1, 0, 0), nil, nil, nil,
			"store", nil, now, now,
		))
}

func expectShelf(mockDB *testutil.MockDB, id, locationID string) {
	now := time.Now()
	mockDB.ExpectQuery("WHERE s.id = $1").
		WithArgs(id).
		WillReturnRows(testutil.MockRows(shelfCols...).AddRow(id, locationID, "Main", "FEFO", 0, now, now))
}

func expectAllocatedSum(mockDB *testutil.MockDB, batchID string, sum int) {
	mockDB.ExpectQuery("SELECT COALESCE(SUM(allocated_qty), 0) FROM shelf_allocations WHERE batch_id = $1").
		WithArgs(batchID).
		WillReturnRows(testutil.MockRows("sum").AddRow(sum))
}

func sqlmockResult(rows int64) driver.Result {
	return sqlmock.NewResult(0, rows)
}
