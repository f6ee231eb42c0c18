package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/amirphl/Kiriban/app/services"
	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/repository"
	"github.com/amirphl/Kiriban/utils"
	"github.com/redis/go-redis/v9"
)

// AssetFlow generates, stores and serves the commemorative asset of an issued token.
// Stored assets are write-once; reads never re-render.
type AssetFlow interface {
	Create(ctx context.Context, counterID, tokenID string, count int64) (*models.TokenAsset, error)
	Get(ctx context.Context, counterID, tokenID string) (*models.TokenAsset, error)
	Metadata(ctx context.Context, counterID, tokenID string) (*models.AssetMetadata, error)
	Image(ctx context.Context, counterID, tokenID string) ([]byte, error)
	Regenerate(ctx context.Context, counterID, tokenID string) (*models.TokenAsset, error)
}

type AssetFlowImpl struct {
	assetRepo     repository.TokenAssetRepository
	issuanceRepo  repository.IssuanceRecordRepository
	renderer      services.ImageRenderer
	rc            *redis.Client
	cacheConfig   config.CacheConfig
	publicBaseURL string
	logger        *log.Logger
}

// NewAssetFlow creates the asset flow. rc may be nil, in which case reads go
// straight to the database.
func NewAssetFlow(
	assetRepo repository.TokenAssetRepository,
	issuanceRepo repository.IssuanceRecordRepository,
	renderer services.ImageRenderer,
	rc *redis.Client,
	cacheConfig config.CacheConfig,
	publicBaseURL string,
	logger *log.Logger,
) AssetFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &AssetFlowImpl{
		assetRepo:     assetRepo,
		issuanceRepo:  issuanceRepo,
		renderer:      renderer,
		rc:            rc,
		cacheConfig:   cacheConfig,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// ImageURL is the public location of a token image
func (f *AssetFlowImpl) ImageURL(counterID, tokenID string) string {
	return fmt.Sprintf("%s/assets/image/%s/%s.png", f.publicBaseURL, counterID, tokenID)
}

// Create renders and stores the asset. A second call for the same key fails
// with ErrAssetAlreadyExists and leaves the first entry untouched.
func (f *AssetFlowImpl) Create(ctx context.Context, counterID, tokenID string, count int64) (*models.TokenAsset, error) {
	asset, err := f.render(counterID, tokenID, count)
	if err != nil {
		return nil, err
	}

	created, err := f.assetRepo.Put(ctx, asset)
	if err != nil {
		return nil, NewBusinessError("ASSET_STORE_FAILED", "Failed to store asset", err)
	}
	if !created {
		return nil, ErrAssetAlreadyExists
	}
	return asset, nil
}

func (f *AssetFlowImpl) render(counterID, tokenID string, count int64) (*models.TokenAsset, error) {
	meta, image, err := f.renderer.RenderAsset(tokenID, count)
	if err != nil {
		return nil, NewBusinessError("ASSET_RENDER_FAILED", "Failed to render asset", err)
	}
	meta.Image = f.ImageURL(counterID, tokenID)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, NewBusinessError("ASSET_RENDER_FAILED", "Failed to encode asset metadata", err)
	}

	return &models.TokenAsset{
		CounterID:      counterID,
		TokenID:        tokenID,
		MilestoneCount: count,
		Metadata:       metaJSON,
		ImagePNG:       image,
	}, nil
}

func (f *AssetFlowImpl) Get(ctx context.Context, counterID, tokenID string) (*models.TokenAsset, error) {
	asset, err := f.assetRepo.Get(ctx, counterID, tokenID)
	if err != nil {
		return nil, NewBusinessError("ASSET_LOOKUP_FAILED", "Failed to lookup asset", err)
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

func (f *AssetFlowImpl) Metadata(ctx context.Context, counterID, tokenID string) (*models.AssetMetadata, error) {
	key := redisKey(f.cacheConfig, utils.AssetMetaKey, counterID, tokenID)
	if cached, ok := f.cacheGet(ctx, key); ok {
		var meta models.AssetMetadata
		if err := json.Unmarshal(cached, &meta); err == nil {
			return &meta, nil
		}
	}

	asset, err := f.Get(ctx, counterID, tokenID)
	if err != nil {
		return nil, err
	}
	meta, err := asset.DecodeMetadata()
	if err != nil {
		return nil, NewBusinessError("ASSET_METADATA_CORRUPT", "Stored asset metadata is unreadable", err)
	}
	f.cacheSet(ctx, key, asset.Metadata)
	return meta, nil
}

func (f *AssetFlowImpl) Image(ctx context.Context, counterID, tokenID string) ([]byte, error) {
	key := redisKey(f.cacheConfig, utils.AssetImageKey, counterID, tokenID)
	if cached, ok := f.cacheGet(ctx, key); ok {
		return cached, nil
	}

	asset, err := f.Get(ctx, counterID, tokenID)
	if err != nil {
		return nil, err
	}
	f.cacheSet(ctx, key, asset.ImagePNG)
	return asset.ImagePNG, nil
}

// Regenerate stores the asset of an issued token whose asset write was lost.
// An existing entry is returned unchanged.
func (f *AssetFlowImpl) Regenerate(ctx context.Context, counterID, tokenID string) (*models.TokenAsset, error) {
	existing, err := f.Get(ctx, counterID, tokenID)
	if err == nil {
		return existing, nil
	}
	if !IsAssetNotFound(err) {
		return nil, err
	}

	rec, err := f.issuanceRepo.ByToken(ctx, counterID, tokenID)
	if err != nil {
		return nil, NewBusinessError("ISSUANCE_LOOKUP_FAILED", "Failed to lookup issuance record", err)
	}
	if rec == nil || rec.Status != models.IssuanceStatusIssued {
		return nil, ErrIssuanceNotCompleted
	}

	asset, err := f.Create(ctx, counterID, tokenID, rec.Count)
	if errors.Is(err, ErrAssetAlreadyExists) {
		return f.Get(ctx, counterID, tokenID)
	}
	return asset, err
}

func (f *AssetFlowImpl) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if f.rc == nil {
		return nil, false
	}
	data, err := f.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			f.logger.Printf("asset cache read failed for %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

func (f *AssetFlowImpl) cacheSet(ctx context.Context, key string, value []byte) {
	if f.rc == nil {
		return
	}
	if err := f.rc.Set(ctx, key, value, f.cacheConfig.DefaultTTL).Err(); err != nil {
		f.logger.Printf("asset cache write failed for %s: %v", key, err)
	}
}
