// Package testing provides database fixtures shared by package tests.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/waypoint/db"
)

// CreateTestDB creates an in-memory SQLite test database.
// A single connection is used so every query sees the same memory database.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

// CreateMigratedTestDB creates a file-backed database in t.TempDir with the
// full schema applied. File-backed so concurrent job goroutines can hold
// separate connections.
func CreateMigratedTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "waypoint-test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create migrated test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
