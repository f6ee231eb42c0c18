package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/utils"
	"gorm.io/gorm"
)

// CounterRepositoryImpl implements CounterRepository
type CounterRepositoryImpl struct {
	*BaseRepository[models.Counter]
}

func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &CounterRepositoryImpl{BaseRepository: NewBaseRepository[models.Counter](db)}
}

func (r *CounterRepositoryImpl) Create(ctx context.Context, counter *models.Counter) (bool, error) {
	created, err := r.insertIfAbsent(ctx, counter)
	if err != nil {
		return false, fmt.Errorf("failed to create counter %s: %w", counter.CounterID, err)
	}
	return created, nil
}

// Increment adds one to the tally and returns the row as committed. The UPDATE
// takes the row lock, and the lock is held until the read-back commits, so
// concurrent increments of one counter are linearized while other counters
// proceed in parallel. Returns nil, nil for an unknown counter.
func (r *CounterRepositoryImpl) Increment(ctx context.Context, counterID string) (*models.Counter, error) {
	var row models.Counter
	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Counter{}).
			Where("counter_id = ?", counterID).
			UpdateColumns(map[string]any{
				"count":      gorm.Expr("count + 1"),
				"updated_at": utils.UTCNow(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("counter_id = ?", counterID).Take(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to increment counter %s: %w", counterID, err)
	}
	return &row, nil
}

func (r *CounterRepositoryImpl) UpdateLastAccessor(ctx context.Context, counterID, accessor string) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Counter{}).
		Where("counter_id = ?", counterID).
		UpdateColumn("last_accessor", accessor).Error
	if err != nil {
		return fmt.Errorf("failed to update last accessor of %s: %w", counterID, err)
	}
	return nil
}

func (r *CounterRepositoryImpl) ByCounterID(ctx context.Context, counterID string) (*models.Counter, error) {
	db := r.getDB(ctx)
	var row models.Counter
	if err := db.Where("counter_id = ?", counterID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
