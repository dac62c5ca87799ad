package database_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantIs     error
	}{
		{
			name:       "insert with missing parent",
			err:        &pq.Error{Code: "23503", Message: `insert or update on table "locations" violates foreign key constraint`, Constraint: "locations_parent_location_id_fkey"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_REFERENCE",
			wantIs:     errors.ErrInvalidReference,
		},
		{
			name:       "delete still referenced",
			err:        &pq.Error{Code: "23503", Message: `update or delete on table "shelves" violates foreign key constraint`, Table: "shelves"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
			wantIs:     errors.ErrConflict,
		},
		{
			name:       "quantity check",
			err:        &pq.Error{Code: "23514", Constraint: "shelf_allocations_qty_positive"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
			wantIs:     errors.ErrValidation,
		},
		{
			name:       "self parent",
			err:        &pq.Error{Code: "23514", Constraint: "locations_parent_not_self"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_REFERENCE",
			wantIs:     errors.ErrInvalidReference,
		},
		{
			name:       "unique",
			err:        &pq.Error{Code: "23505", Constraint: "some_unique"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
			wantIs:     errors.ErrConflict,
		},
		{
			name:       "wrapped not null",
			err:        fmt.Errorf("insert: %w", &pq.Error{Code: "23502", Column: "expiry_date"}),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
			wantIs:     errors.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := database.MapPQError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.True(t, errors.Is(appErr, tt.wantIs))
		})
	}
}

func TestMapPQError_NonPQ(t *testing.T) {
	assert.Nil(t, database.MapPQError(fmt.Errorf("boom")))
	assert.Nil(t, database.MapPQError(&pq.Error{Code: "40001"}))
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, database.Translate(nil))

	plain := fmt.Errorf("connection reset")
	assert.Equal(t, plain, database.Translate(plain))

	var appErr *errors.AppError
	require.True(t, errors.As(database.Translate(&pq.Error{Code: "23505"}), &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, database.IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.False(t, database.IsForeignKeyViolation(&pq.Error{Code: "23505"}))
	assert.False(t, database.IsForeignKeyViolation(fmt.Errorf("x")))
}

func TestMapPQError_ForeignKeyNamesMissingRecord(t *testing.T) {
	insert := `insert or update on table violates foreign key constraint`
	tests := map[string]string{
		"locations_parent_location_id_fkey": "parent location does not exist",
		"batches_parent_batch_id_fkey":      "parent batch does not exist",
		"shelf_allocations_shelf_id_fkey":   "shelf does not exist",
		"shelf_allocations_batch_id_fkey":   "batch does not exist",
		"shelves_location_id_fkey":          "location does not exist",
		"batches_location_id_fkey":          "location does not exist",
		"something_else":                    "referenced record does not exist",
	}

	for constraint, want := range tests {
		t.Run(constraint, func(t *testing.T) {
			appErr := database.MapPQError(&pq.Error{Code: "23503", Message: insert, Constraint: constraint})
			require.NotNil(t, appErr)
			assert.Equal(t, "INVALID_REFERENCE", appErr.Code)
			assert.Equal(t, want, appErr.Message)
		})
	}
}

func TestMapPQError_MalformedUUID(t *testing.T) {
	appErr := database.MapPQError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "nope"`})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.True(t, errors.Is(appErr, errors.ErrBadRequest))
}
