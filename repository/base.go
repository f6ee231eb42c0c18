// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Kiriban/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BaseRepository provides common repository functionality
type BaseRepository[T any] struct {
	DB *gorm.DB
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{
		DB: db,
	}
}

// getDB returns the database handle bound to ctx
func (r *BaseRepository[T]) getDB(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}

// insertIfAbsent inserts entity unless a row with the same unique key exists.
// It reports whether this call created the row.
func (r *BaseRepository[T]) insertIfAbsent(ctx context.Context, entity *T) (bool, error) {
	res := r.getDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entity)
	if res.Error != nil {
		return false, fmt.Errorf("failed to save entity: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Migrate creates or updates the tables owned by this package
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Counter{},
		&models.IssuanceRecord{},
		&models.TokenAsset{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
