// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Kiriban/models"
)

// CounterRepository is the durable store of counter records.
// It never exposes a read-then-write path to callers; Increment is the only
// way to change a count.
type CounterRepository interface {
	// Create inserts the counter. created is false when the id is already taken.
	Create(ctx context.Context, counter *models.Counter) (created bool, err error)
	// Increment atomically adds one to the count and returns the updated row,
	// or nil when the id is unknown.
	Increment(ctx context.Context, counterID string) (*models.Counter, error)
	UpdateLastAccessor(ctx context.Context, counterID, accessor string) error
	ByCounterID(ctx context.Context, counterID string) (*models.Counter, error)
}

// IssuanceRecordRepository holds the durable issuance guards
type IssuanceRecordRepository interface {
	// Acquire inserts a pending guard. acquired is false when a guard for the
	// same (counterID, count) already exists in any state.
	Acquire(ctx context.Context, counterID string, count int64, ownerID string) (acquired bool, err error)
	MarkIssued(ctx context.Context, counterID string, count int64, tokenID string) error
	// Release removes a pending guard so the milestone may be attempted again.
	Release(ctx context.Context, counterID string, count int64) error
	ByKey(ctx context.Context, counterID string, count int64) (*models.IssuanceRecord, error)
	ByToken(ctx context.Context, counterID, tokenID string) (*models.IssuanceRecord, error)
	ByFilter(ctx context.Context, filter models.IssuanceRecordFilter, orderBy string, limit, offset int) ([]*models.IssuanceRecord, error)
	// MarkOrphaned flags pending guards created before the cutoff and returns how many changed.
	MarkOrphaned(ctx context.Context, createdBefore time.Time) (int64, error)
}

// TokenAssetRepository is the write-once store of generated assets
type TokenAssetRepository interface {
	// Put inserts the asset. created is false when the key already exists; the
	// stored row is left untouched.
	Put(ctx context.Context, asset *models.TokenAsset) (created bool, err error)
	Get(ctx context.Context, counterID, tokenID string) (*models.TokenAsset, error)
}
