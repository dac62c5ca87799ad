package migrations_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medflow/pharmacy-inventory/internal/inventory/migrations"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/medflow/pharmacy-inventory/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_Ordered(t *testing.T) {
	all, err := migrations.All()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
	assert.Equal(t, "0001_inventory_core", all[0].Version)
}

func TestAll_CoreSchema(t *testing.T) {
	all, err := migrations.All()
	require.NoError(t, err)
	core := all[0].SQL

	for _, table := range []string{"locations", "shelves", "batches", "shelf_allocations"} {
		assert.Contains(t, core, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, core, "ON DELETE RESTRICT")
}

func TestRun_SkipsApplied(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	all, err := migrations.All()
	require.NoError(t, err)
	applied := testutil.MockRows("version")
	for _, m := range all {
		applied.AddRow(m.Version)
	}

	mockDB.ExpectBegin()
	mockDB.ExpectExec("SELECT pg_advisory_xact_lock($1)").WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(applied)
	mockDB.ExpectCommit()

	require.NoError(t, migrations.Run(context.Background(), mockDB.Database(), logger.Nop()))
	mockDB.ExpectationsWereMet(t)
}

func TestRun_AppliesPending(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	all, err := migrations.All()
	require.NoError(t, err)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("SELECT pg_advisory_xact_lock($1)").WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(testutil.MockRows("version"))
	for _, m := range all {
		mockDB.Mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(m.Version).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mockDB.ExpectCommit()

	require.NoError(t, migrations.Run(context.Background(), mockDB.Database(), logger.Nop()))
	mockDB.ExpectationsWereMet(t)
}
