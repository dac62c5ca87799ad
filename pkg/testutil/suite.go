package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// MigrateFunc applies a service's schema to db
type MigrateFunc func(ctx context.Context, db *database.DB) error

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	Schemas   *SchemaManager
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if !testing.Short() {
//	        s, err := testutil.NewIntegrationSuite(context.Background())
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        suite = s
//	    }
//	    os.Exit(m.Run())
//	}
//
//	func TestSomething(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    db := suite.SetupSchema(t, ctx, migrate)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		Schemas:   NewSchemaManager(db),
		Fixtures:  NewFixtureFactory(),
		Logger:    logger.Nop(),
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupSchema creates an isolated schema for one test, applies migrate to it
// and returns a database handle whose connections are pinned to that schema.
// The schema is dropped when the test finishes.
func (s *IntegrationSuite) SetupSchema(t *testing.T, ctx context.Context, migrate MigrateFunc) *database.DB {
	t.Helper()

	schema, err := s.Schemas.CreateSchema(ctx, t.Name())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	db, err := database.NewWithDSN(s.Container.SchemaDSN(schema.Name), s.Logger)
	if err != nil {
		t.Fatalf("failed to connect to schema %s: %v", schema.Name, err)
	}

	t.Cleanup(func() {
		db.Close()
		if err := s.Schemas.DropSchema(context.Background(), schema); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema.Name, err)
		}
	})

	if migrate != nil {
		if err := migrate(ctx, db); err != nil {
			t.Fatalf("failed to migrate schema %s: %v", schema.Name, err)
		}
	}

	return db
}

// Cleanup cleans up all test resources
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	// The container is shared and terminated by TerminateContainer
	return s.Schemas.Cleanup(ctx)
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
