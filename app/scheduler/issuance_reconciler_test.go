package scheduler

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/repository"
	testingutil "github.com/amirphl/Kiriban/testing"
	"github.com/amirphl/Kiriban/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuanceReconciler(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		repo := repository.NewIssuanceRecordRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		reconciler := NewIssuanceReconciler(repo, "@every 1h", 30*time.Minute, log.New(io.Discard, "", 0))

		stale, err := fixtures.CreateTestIssuanceRecord("c1", 1000, models.IssuanceStatusPending)
		require.NoError(t, err)
		require.NoError(t, testDB.DB.Model(stale).UpdateColumn("created_at", utils.UTCNowAdd(-time.Hour)).Error)

		_, err = fixtures.CreateTestIssuanceRecord("c1", 1111, models.IssuanceStatusPending)
		require.NoError(t, err)
		issued, err := fixtures.CreateTestIssuanceRecord("c1", 2000, models.IssuanceStatusIssued)
		require.NoError(t, err)
		require.NoError(t, testDB.DB.Model(issued).UpdateColumn("created_at", utils.UTCNowAdd(-time.Hour)).Error)

		assert.Equal(t, int64(1), reconciler.RunOnce(ctx))
		assert.Equal(t, int64(0), reconciler.RunOnce(ctx))

		rec, err := repo.ByKey(ctx, "c1", 1000)
		require.NoError(t, err)
		assert.Equal(t, models.IssuanceStatusOrphaned, rec.Status)

		// an orphaned key is never acquired again
		acquired, err := repo.Acquire(ctx, "c1", 1000, "0xother")
		require.NoError(t, err)
		assert.False(t, acquired)

		rec, err = repo.ByKey(ctx, "c1", 1111)
		require.NoError(t, err)
		assert.Equal(t, models.IssuanceStatusPending, rec.Status)

		rec, err = repo.ByKey(ctx, "c1", 2000)
		require.NoError(t, err)
		assert.Equal(t, models.IssuanceStatusIssued, rec.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestIssuanceReconcilerStart(t *testing.T) {
	reconciler := NewIssuanceReconciler(nil, "not a schedule", time.Minute, log.New(io.Discard, "", 0))
	_, err := reconciler.Start(context.Background())
	assert.Error(t, err)

	reconciler = NewIssuanceReconciler(nil, "@every 1h", time.Minute, log.New(io.Discard, "", 0))
	stop, err := reconciler.Start(context.Background())
	require.NoError(t, err)
	stop()
}
