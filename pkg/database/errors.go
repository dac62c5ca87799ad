package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
)

// PostgreSQL error codes the inventory cares about
const (
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case codeCheckViolation:
		return mapCheckConstraint(pqErr)

	case codeUniqueViolation:
		return errors.Conflict("a record with these values already exists")

	case codeForeignKeyViolation:
		// Deleting a row that is still referenced vs. inserting a dangling reference
		if strings.HasPrefix(pqErr.Message, "update or delete") {
			return errors.Conflict("record is still referenced by " + pqErr.Table)
		}
		return errors.InvalidReference(foreignKeyMessage(pqErr.Constraint))

	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	case codeInvalidText:
		// Malformed UUID that slipped past request validation
		return errors.BadRequest("malformed identifier")

	default:
		return nil
	}
}

// Translate returns the mapped AppError for pq errors and err unchanged
// otherwise. Repositories wrap every write with it.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// IsForeignKeyViolation reports whether err is a 23503 from PostgreSQL
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

// foreignKeyMessage names the missing record from a "<table>_<column>_fkey"
// constraint. Suffixes are checked most specific first: "shelf_allocations"
// itself contains "location".
func foreignKeyMessage(constraint string) string {
	switch {
	case strings.HasSuffix(constraint, "_parent_location_id_fkey"):
		return "parent location does not exist"
	case strings.HasSuffix(constraint, "_parent_batch_id_fkey"):
		return "parent batch does not exist"
	case strings.HasSuffix(constraint, "_shelf_id_fkey"):
		return "shelf does not exist"
	case strings.HasSuffix(constraint, "_batch_id_fkey"):
		return "batch does not exist"
	case strings.HasSuffix(constraint, "_location_id_fkey"):
		return "location does not exist"
	default:
		return "referenced record does not exist"
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.HasSuffix(constraint, "type_valid") && strings.HasPrefix(constraint, "locations"):
		return errors.Validation(map[string]string{
			"type": "must be one of: branch, warehouse, external, supplier, quarantine, clinic",
		})

	case strings.HasSuffix(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: active, inactive, suspended",
		})

	case strings.Contains(constraint, "dispatch_method_valid"):
		return errors.Validation(map[string]string{
			"dispatch_method": "must be one of: FEFO, FIFO, LIFO, MANUAL",
		})

	case strings.Contains(constraint, "stock_type_valid"):
		return errors.Validation(map[string]string{
			"stock_type": "must be one of: store, pharmacy, quarantine, external",
		})

	case strings.Contains(constraint, "quantity_positive"), strings.Contains(constraint, "qty_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than 0",
		})

	case strings.Contains(constraint, "manufacturing_before_expiry"):
		return errors.Validation(map[string]string{
			"manufacturing_date": "must not be after expiry_date",
		})

	case strings.Contains(constraint, "parent_not_self"):
		return errors.InvalidReference("a record cannot be its own parent")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}
