package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TestSchema is an isolated PostgreSQL schema owned by one test
type TestSchema struct {
	Name string
}

// SchemaManager creates and drops per-test schemas so integration tests can
// share one container without seeing each other's rows.
type SchemaManager struct {
	db      *sqlx.DB
	schemas []TestSchema
	mu      sync.Mutex
}

// NewSchemaManager creates a new schema manager for tests
func NewSchemaManager(db *sqlx.DB) *SchemaManager {
	return &SchemaManager{
		db:      db,
		schemas: make([]TestSchema, 0),
	}
}

// CreateSchema creates a fresh schema named after prefix plus a random suffix
func (sm *SchemaManager) CreateSchema(ctx context.Context, prefix string) (*TestSchema, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	name := fmt.Sprintf("test_%s_%s", sanitizeIdent(prefix), suffix)

	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", name)); err != nil {
		return nil, fmt.Errorf("failed to create test schema: %w", err)
	}

	s := TestSchema{Name: name}
	sm.schemas = append(sm.schemas, s)
	return &s, nil
}

// DropSchema removes a schema and everything in it
func (sm *SchemaManager) DropSchema(ctx context.Context, s *TestSchema) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
		return fmt.Errorf("failed to drop test schema: %w", err)
	}

	for i, tracked := range sm.schemas {
		if tracked.Name == s.Name {
			sm.schemas = append(sm.schemas[:i], sm.schemas[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup drops all schemas created by this manager.
// Call this in TestMain or test cleanup.
func (sm *SchemaManager) Cleanup(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var lastErr error
	for _, s := range sm.schemas {
		if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
			lastErr = err
		}
	}

	sm.schemas = make([]TestSchema, 0)
	return lastErr
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() > 24 {
		return b.String()[:24]
	}
	return b.String()
}
