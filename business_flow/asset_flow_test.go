package businessflow

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirphl/Kiriban/app/services"
	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/repository"
	testingutil "github.com/amirphl/Kiriban/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		renderer, err := services.NewImageRenderer()
		require.NoError(t, err)

		mr, rc := newTestRedis(t)
		cacheCfg := config.CacheConfig{RedisPrefix: "test:", DefaultTTL: time.Hour}
		assetRepo := repository.NewTokenAssetRepository(testDB.DB)
		issuanceRepo := repository.NewIssuanceRecordRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := NewAssetFlow(assetRepo, issuanceRepo, renderer, rc, cacheCfg, "https://kiriban.example.com/", log.New(io.Discard, "", 0))

		t.Run("CreateIsWriteOnce", func(t *testing.T) {
			first, err := flow.Create(ctx, "c1", "3", 1000)
			require.NoError(t, err)

			_, err = flow.Create(ctx, "c1", "3", 2000)
			assert.True(t, IsAssetAlreadyExists(err))

			stored, err := flow.Get(ctx, "c1", "3")
			require.NoError(t, err)
			assert.Equal(t, int64(1000), stored.MilestoneCount)
			assert.Equal(t, first.ImagePNG, stored.ImagePNG)
		})

		t.Run("GetMissing", func(t *testing.T) {
			_, err := flow.Get(ctx, "c1", "404")
			assert.True(t, IsAssetNotFound(err))

			_, err = flow.Image(ctx, "c1", "404")
			assert.True(t, IsAssetNotFound(err))
		})

		t.Run("ReadThroughCache", func(t *testing.T) {
			asset, err := flow.Create(ctx, "c2", "9", 777)
			require.NoError(t, err)

			meta, err := flow.Metadata(ctx, "c2", "9")
			require.NoError(t, err)
			assert.Equal(t, "Kiriban #9", meta.Name)
			assert.Equal(t, "https://kiriban.example.com/assets/image/c2/9.png", meta.Image)
			assert.True(t, mr.Exists("test:asset:meta:c2:9"))

			img, err := flow.Image(ctx, "c2", "9")
			require.NoError(t, err)
			assert.Equal(t, asset.ImagePNG, img)

			cached, err := mr.Get("test:asset:image:c2:9")
			require.NoError(t, err)
			assert.Equal(t, string(asset.ImagePNG), cached)

			// served from redis once the row is gone
			require.NoError(t, testDB.DB.Where("counter_id = ?", "c2").Delete(&models.TokenAsset{}).Error)
			img, err = flow.Image(ctx, "c2", "9")
			require.NoError(t, err)
			assert.Equal(t, asset.ImagePNG, img)
		})

		t.Run("Regenerate", func(t *testing.T) {
			counter, err := fixtures.CreateTestCounter(500, 3, models.MilestoneRoundOrRepdigit100)
			require.NoError(t, err)
			rec, err := fixtures.CreateTestIssuanceRecord(counter.CounterID, 444, models.IssuanceStatusIssued)
			require.NoError(t, err)

			asset, err := flow.Regenerate(ctx, counter.CounterID, *rec.TokenID)
			require.NoError(t, err)
			assert.Equal(t, int64(444), asset.MilestoneCount)

			again, err := flow.Regenerate(ctx, counter.CounterID, *rec.TokenID)
			require.NoError(t, err)
			assert.Equal(t, asset.ImagePNG, again.ImagePNG)
		})

		t.Run("RegenerateRequiresIssuedToken", func(t *testing.T) {
			_, err := flow.Regenerate(ctx, "c3", "1")
			assert.ErrorIs(t, err, ErrIssuanceNotCompleted)
		})

		return nil
	})
	require.NoError(t, err)
}
