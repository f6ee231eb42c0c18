package repository_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/repository"
	testingutil "github.com/amirphl/Kiriban/testing"
	"github.com/amirphl/Kiriban/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestCounterRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCounterRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("Create", func(t *testing.T) {
			counter := &models.Counter{CounterID: uuid.NewString(), Count: 41, DigitWidth: 6}
			created, err := repo.Create(ctx, counter)
			require.NoError(t, err)
			assert.True(t, created)

			stored, err := repo.ByCounterID(ctx, counter.CounterID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, int64(41), stored.Count)
			assert.Equal(t, 6, stored.DigitWidth)
			assert.Equal(t, models.MilestoneRoundOrRepdigit100, stored.MilestoneKind)
			assert.Nil(t, stored.LastAccessor)
		})

		t.Run("CreateDuplicate", func(t *testing.T) {
			existing, err := fixtures.CreateTestCounter(5, 3, models.MilestoneRoundOrRepdigit100)
			require.NoError(t, err)

			created, err := repo.Create(ctx, &models.Counter{CounterID: existing.CounterID, Count: 900, DigitWidth: 1})
			require.NoError(t, err)
			assert.False(t, created)

			stored, err := repo.ByCounterID(ctx, existing.CounterID)
			require.NoError(t, err)
			assert.Equal(t, int64(5), stored.Count)
			assert.Equal(t, 3, stored.DigitWidth)
		})

		t.Run("Increment", func(t *testing.T) {
			counter, err := fixtures.CreateTestCounter(99, 4, models.MilestoneRoundOrRepdigit100)
			require.NoError(t, err)

			updated, err := repo.Increment(ctx, counter.CounterID)
			require.NoError(t, err)
			require.NotNil(t, updated)
			assert.Equal(t, int64(100), updated.Count)
			assert.Equal(t, 4, updated.DigitWidth)
			assert.False(t, updated.UpdatedAt.Before(counter.UpdatedAt))
		})

		t.Run("IncrementNotFound", func(t *testing.T) {
			updated, err := repo.Increment(ctx, "missing-counter")
			assert.NoError(t, err)
			assert.Nil(t, updated)

			row, err := repo.ByCounterID(ctx, "missing-counter")
			assert.NoError(t, err)
			assert.Nil(t, row, "increment must not create records")
		})

		t.Run("ConcurrentIncrements", func(t *testing.T) {
			counter, err := fixtures.CreateTestCounter(0, 3, models.MilestoneRoundOrRepdigit100)
			require.NoError(t, err)

			const n = 100
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				seen = make(map[int64]bool, n)
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					updated, err := repo.Increment(ctx, counter.CounterID)
					if !assert.NoError(t, err) || !assert.NotNil(t, updated) {
						return
					}
					mu.Lock()
					seen[updated.Count] = true
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.Len(t, seen, n, "every caller observes a distinct count")
			for i := int64(1); i <= n; i++ {
				assert.True(t, seen[i], "count %d missing", i)
			}

			stored, err := repo.ByCounterID(ctx, counter.CounterID)
			require.NoError(t, err)
			assert.Equal(t, int64(n), stored.Count)
		})

		t.Run("UpdateLastAccessor", func(t *testing.T) {
			counter, err := fixtures.CreateTestCounter(0, 1, models.MilestoneRoundOrRepdigit10)
			require.NoError(t, err)

			require.NoError(t, repo.UpdateLastAccessor(ctx, counter.CounterID, "203.0.113.7"))
			require.NoError(t, repo.UpdateLastAccessor(ctx, counter.CounterID, "198.51.100.1"))

			stored, err := repo.ByCounterID(ctx, counter.CounterID)
			require.NoError(t, err)
			require.NotNil(t, stored.LastAccessor)
			assert.Equal(t, "198.51.100.1", *stored.LastAccessor)
			assert.Equal(t, int64(0), stored.Count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCounterRepository_SurvivesRestart(t *testing.T) {
	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	defer testDB.TeardownTestDB()

	ctx := testingutil.CreateTestContext()
	fixtures := testingutil.NewTestFixtures(testDB)
	counter, err := fixtures.CreateTestCounter(10, 2, models.MilestoneRoundOrRepdigit100)
	require.NoError(t, err)

	repo := repository.NewCounterRepository(testDB.DB)
	for i := 0; i < 3; i++ {
		_, err := repo.Increment(ctx, counter.CounterID)
		require.NoError(t, err)
	}

	require.NoError(t, testDB.Reopen())

	repo = repository.NewCounterRepository(testDB.DB)
	stored, err := repo.ByCounterID(ctx, counter.CounterID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(13), stored.Count)

	updated, err := repo.Increment(ctx, counter.CounterID)
	require.NoError(t, err)
	assert.Equal(t, int64(14), updated.Count)
}

func TestCounterRepository_IncrementStorageFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "counters" SET`).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	repo := repository.NewCounterRepository(db)
	updated, err := repo.Increment(testingutil.CreateTestContext(), "c1")
	require.Error(t, err)
	assert.Nil(t, updated)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssuanceRecordRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewIssuanceRecordRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("AcquireOnce", func(t *testing.T) {
			counterID := uuid.NewString()
			acquired, err := repo.Acquire(ctx, counterID, 1000, "0xabc")
			require.NoError(t, err)
			assert.True(t, acquired)

			acquired, err = repo.Acquire(ctx, counterID, 1000, "0xdef")
			require.NoError(t, err)
			assert.False(t, acquired)

			rec, err := repo.ByKey(ctx, counterID, 1000)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, models.IssuanceStatusPending, rec.Status)
			assert.Equal(t, "0xabc", rec.OwnerID)
		})

		t.Run("ConcurrentAcquire", func(t *testing.T) {
			counterID := uuid.NewString()
			const n = 50
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				won int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					acquired, err := repo.Acquire(ctx, counterID, 777, "0xabc")
					if assert.NoError(t, err) && acquired {
						mu.Lock()
						won++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, won)
		})

		t.Run("MarkIssued", func(t *testing.T) {
			counterID := uuid.NewString()
			_, err := repo.Acquire(ctx, counterID, 200, "0xabc")
			require.NoError(t, err)

			require.NoError(t, repo.MarkIssued(ctx, counterID, 200, "17"))

			rec, err := repo.ByToken(ctx, counterID, "17")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, models.IssuanceStatusIssued, rec.Status)
			assert.Equal(t, int64(200), rec.Count)
			assert.NotNil(t, rec.IssuedAt)

			err = repo.MarkIssued(ctx, counterID, 200, "18")
			assert.Error(t, err, "an issued guard cannot be issued again")

			rec, err = repo.ByToken(ctx, counterID, "18")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})

		t.Run("ReleaseAllowsReacquire", func(t *testing.T) {
			counterID := uuid.NewString()
			_, err := repo.Acquire(ctx, counterID, 300, "0xabc")
			require.NoError(t, err)

			require.NoError(t, repo.Release(ctx, counterID, 300))
			rec, err := repo.ByKey(ctx, counterID, 300)
			require.NoError(t, err)
			assert.Nil(t, rec)

			acquired, err := repo.Acquire(ctx, counterID, 300, "0xabc")
			require.NoError(t, err)
			assert.True(t, acquired)
		})

		t.Run("ReleaseKeepsIssued", func(t *testing.T) {
			counter, err := fixtures.CreateTestCounter(400, 3, models.MilestoneRoundOrRepdigit100)
			require.NoError(t, err)
			_, err = fixtures.CreateTestIssuanceRecord(counter.CounterID, 400, models.IssuanceStatusIssued)
			require.NoError(t, err)

			require.NoError(t, repo.Release(ctx, counter.CounterID, 400))
			rec, err := repo.ByKey(ctx, counter.CounterID, 400)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, models.IssuanceStatusIssued, rec.Status)
		})

		t.Run("MarkOrphaned", func(t *testing.T) {
			counterID := uuid.NewString()
			stale := &models.IssuanceRecord{
				CounterID: counterID,
				Count:     500,
				OwnerID:   "0xabc",
				Status:    models.IssuanceStatusPending,
				CreatedAt: utils.UTCNowAdd(-2 * time.Hour),
			}
			require.NoError(t, testDB.DB.Create(stale).Error)
			_, err := repo.Acquire(ctx, counterID, 555, "0xabc")
			require.NoError(t, err)

			n, err := repo.MarkOrphaned(ctx, utils.UTCNowAdd(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			orphaned := models.IssuanceStatusOrphaned
			rows, err := repo.ByFilter(ctx, models.IssuanceRecordFilter{CounterID: &counterID, Status: &orphaned}, "count ASC", 0, 0)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, int64(500), rows[0].Count)

			acquired, err := repo.Acquire(ctx, counterID, 500, "0xabc")
			require.NoError(t, err)
			assert.False(t, acquired, "orphaned guards are never re-acquired")
		})

		return nil
	})
	require.NoError(t, err)
}

func TestTokenAssetRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewTokenAssetRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("PutGet", func(t *testing.T) {
			asset := &models.TokenAsset{
				CounterID:      "c1",
				TokenID:        "7",
				MilestoneCount: 1000,
				Metadata:       []byte(`{"name":"Kiriban #7","description":"d","image":"i"}`),
				ImagePNG:       []byte{0x89, 'P', 'N', 'G'},
			}
			created, err := repo.Put(ctx, asset)
			require.NoError(t, err)
			assert.True(t, created)

			stored, err := repo.Get(ctx, "c1", "7")
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, asset.ImagePNG, stored.ImagePNG)
			meta, err := stored.DecodeMetadata()
			require.NoError(t, err)
			assert.Equal(t, "Kiriban #7", meta.Name)
		})

		t.Run("PutIsWriteOnce", func(t *testing.T) {
			first := &models.TokenAsset{CounterID: "c2", TokenID: "1", MilestoneCount: 100, Metadata: []byte(`{"name":"first"}`), ImagePNG: []byte("first")}
			second := &models.TokenAsset{CounterID: "c2", TokenID: "1", MilestoneCount: 100, Metadata: []byte(`{"name":"second"}`), ImagePNG: []byte("second")}

			created, err := repo.Put(ctx, first)
			require.NoError(t, err)
			assert.True(t, created)

			created, err = repo.Put(ctx, second)
			require.NoError(t, err)
			assert.False(t, created)

			stored, err := repo.Get(ctx, "c2", "1")
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), stored.ImagePNG)
		})

		t.Run("GetMissing", func(t *testing.T) {
			stored, err := repo.Get(ctx, "c1", "999")
			assert.NoError(t, err)
			assert.Nil(t, stored)
		})

		return nil
	})
	require.NoError(t, err)
}
