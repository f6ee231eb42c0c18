package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/utils"
	"gorm.io/gorm"
)

// IssuanceRecordRepositoryImpl implements IssuanceRecordRepository
type IssuanceRecordRepositoryImpl struct {
	*BaseRepository[models.IssuanceRecord]
}

func NewIssuanceRecordRepository(db *gorm.DB) IssuanceRecordRepository {
	return &IssuanceRecordRepositoryImpl{BaseRepository: NewBaseRepository[models.IssuanceRecord](db)}
}

// Acquire relies on the (counter_id, count) unique index: exactly one concurrent
// caller inserts the row, every other caller sees a conflict.
func (r *IssuanceRecordRepositoryImpl) Acquire(ctx context.Context, counterID string, count int64, ownerID string) (bool, error) {
	rec := &models.IssuanceRecord{
		CounterID: counterID,
		Count:     count,
		OwnerID:   ownerID,
		Status:    models.IssuanceStatusPending,
	}
	acquired, err := r.insertIfAbsent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("failed to acquire issuance guard %s#%d: %w", counterID, count, err)
	}
	return acquired, nil
}

func (r *IssuanceRecordRepositoryImpl) MarkIssued(ctx context.Context, counterID string, count int64, tokenID string) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	res := db.Model(&models.IssuanceRecord{}).
		Where("counter_id = ? AND count = ? AND status = ?", counterID, count, models.IssuanceStatusPending).
		Updates(map[string]any{
			"status":     models.IssuanceStatusIssued,
			"token_id":   tokenID,
			"issued_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark issuance %s#%d issued: %w", counterID, count, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no pending issuance guard for %s#%d", counterID, count)
	}
	return nil
}

func (r *IssuanceRecordRepositoryImpl) Release(ctx context.Context, counterID string, count int64) error {
	db := r.getDB(ctx)
	err := db.
		Where("counter_id = ? AND count = ? AND status = ?", counterID, count, models.IssuanceStatusPending).
		Delete(&models.IssuanceRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to release issuance guard %s#%d: %w", counterID, count, err)
	}
	return nil
}

func (r *IssuanceRecordRepositoryImpl) ByKey(ctx context.Context, counterID string, count int64) (*models.IssuanceRecord, error) {
	db := r.getDB(ctx)
	var row models.IssuanceRecord
	if err := db.Where("counter_id = ? AND count = ?", counterID, count).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *IssuanceRecordRepositoryImpl) ByToken(ctx context.Context, counterID, tokenID string) (*models.IssuanceRecord, error) {
	db := r.getDB(ctx)
	var row models.IssuanceRecord
	if err := db.Where("counter_id = ? AND token_id = ?", counterID, tokenID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *IssuanceRecordRepositoryImpl) applyFilter(db *gorm.DB, f models.IssuanceRecordFilter) *gorm.DB {
	if f.CounterID != nil {
		db = db.Where("counter_id = ?", *f.CounterID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *IssuanceRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.IssuanceRecordFilter, orderBy string, limit, offset int) ([]*models.IssuanceRecord, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.IssuanceRecord{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.IssuanceRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *IssuanceRecordRepositoryImpl) MarkOrphaned(ctx context.Context, createdBefore time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.IssuanceRecord{}).
		Where("status = ? AND created_at < ?", models.IssuanceStatusPending, createdBefore).
		Updates(map[string]any{
			"status":     models.IssuanceStatusOrphaned,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark orphaned issuance guards: %w", res.Error)
	}
	return res.RowsAffected, nil
}
