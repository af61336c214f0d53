// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"delivery-tracker/backend/internal/database"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database that lives for the
// duration of t. The pool holds exactly one connection, so code running
// inside a transaction must use the transaction handle only.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   database.DriverSQLite,
		DSN:      ":memory:",
		LogLevel: logger.Silent,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	if err := database.Migrate(pool.DB); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return pool.DB
}
