// Package testutil opens throwaway databases for tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/database"
)

// NewDB returns a private in-memory SQLite database with the full schema, closed on cleanup.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db := NewBareDB(t)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewBareDB is NewDB without migrations.
func NewBareDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
