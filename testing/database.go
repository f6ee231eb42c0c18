// Package testing provides test utilities and database setup for testing the counter service
package testing

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/repository"
	"gorm.io/gorm"
)

// TestDB represents a test database instance backed by a SQLite file
type TestDB struct {
	DB   *gorm.DB
	Path string
	dir  string
}

// SQLiteTestConfig returns a database config pointing at path
func SQLiteTestConfig(path string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:      "sqlite",
		SQLitePath:  path,
		BusyTimeout: 5 * time.Second,
	}
}

// SetupTestDB creates a fresh database file in a temporary directory and runs migrations
func SetupTestDB() (*TestDB, error) {
	dir, err := os.MkdirTemp("", "kiriban_test_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := filepath.Join(dir, "kiriban.db")
	db, err := openAndMigrate(path)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return &TestDB{DB: db, Path: path, dir: dir}, nil
}

func openAndMigrate(path string) (*gorm.DB, error) {
	db, err := repository.Open(SQLiteTestConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open test database %s: %w", path, err)
	}
	if err := repository.Migrate(db); err != nil {
		repository.Close(db)
		return nil, fmt.Errorf("failed to run migrations on test database %s: %w", path, err)
	}
	return db, nil
}

// Reopen closes the connection and opens the same file again, simulating a restart
func (tdb *TestDB) Reopen() error {
	if err := repository.Close(tdb.DB); err != nil {
		return fmt.Errorf("failed to close test database: %w", err)
	}
	db, err := openAndMigrate(tdb.Path)
	if err != nil {
		return err
	}
	tdb.DB = db
	return nil
}

// TeardownTestDB closes connections and removes the database files
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB != nil {
		if err := repository.Close(tdb.DB); err != nil {
			log.Printf("Warning: failed to close test database %s: %v", tdb.Path, err)
		}
	}
	return os.RemoveAll(tdb.dir)
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	tables := []string{
		"token_assets",
		"issuance_records",
		"counters",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}

	return nil
}

// TestWithDB is a helper function that sets up a test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}
