package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Kiriban/models"
	"gorm.io/gorm"
)

// TokenAssetRepositoryImpl implements TokenAssetRepository
type TokenAssetRepositoryImpl struct {
	*BaseRepository[models.TokenAsset]
}

func NewTokenAssetRepository(db *gorm.DB) TokenAssetRepository {
	return &TokenAssetRepositoryImpl{BaseRepository: NewBaseRepository[models.TokenAsset](db)}
}

func (r *TokenAssetRepositoryImpl) Put(ctx context.Context, asset *models.TokenAsset) (bool, error) {
	created, err := r.insertIfAbsent(ctx, asset)
	if err != nil {
		return false, fmt.Errorf("failed to store asset %s/%s: %w", asset.CounterID, asset.TokenID, err)
	}
	return created, nil
}

func (r *TokenAssetRepositoryImpl) Get(ctx context.Context, counterID, tokenID string) (*models.TokenAsset, error) {
	db := r.getDB(ctx)
	var row models.TokenAsset
	if err := db.Where("counter_id = ? AND token_id = ?", counterID, tokenID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
