package datastore

import (
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/platewatch/platewatch/internal/errors"
)

// mysqlDuplicateEntry is MySQL's ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// ErrDuplicate is matched by errors.Is for unique constraint violations.
var ErrDuplicate = errors.NewStd("duplicate entry")

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for bad caller input
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

// notFoundError reports a missing row
func notFoundError(entity string, id uint) error {
	return errors.Newf("%s %d not found", entity, id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Context("id", id).
		Build()
}

// conflictError wraps a unique constraint violation so callers can test for ErrDuplicate
func conflictError(err error, operation, field string, value any) error {
	return errors.New(errors.Join(ErrDuplicate, err)).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("operation", operation).
		Context("field", field).
		Context("value", value).
		Build()
}

// isDuplicateKeyError reports whether err is a unique constraint violation
// from either supported driver.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
