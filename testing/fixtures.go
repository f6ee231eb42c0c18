package testing

import (
	"fmt"

	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCounter inserts a counter with a random id
func (tf *TestFixtures) CreateTestCounter(count int64, digitWidth int, kind models.MilestoneKind) (*models.Counter, error) {
	counter := &models.Counter{
		CounterID:     uuid.NewString(),
		Count:         count,
		DigitWidth:    digitWidth,
		MilestoneKind: kind,
	}
	if err := tf.DB.DB.Create(counter).Error; err != nil {
		return nil, fmt.Errorf("failed to create test counter: %w", err)
	}
	return counter, nil
}

// CreateTestIssuanceRecord inserts a guard row in the given status
func (tf *TestFixtures) CreateTestIssuanceRecord(counterID string, count int64, status models.IssuanceStatus) (*models.IssuanceRecord, error) {
	rec := &models.IssuanceRecord{
		CounterID: counterID,
		Count:     count,
		OwnerID:   "0xowner",
		Status:    status,
	}
	if status == models.IssuanceStatusIssued {
		rec.TokenID = utils.ToPtr(fmt.Sprintf("%d", count))
		rec.IssuedAt = utils.UTCNowPtr()
	}
	if err := tf.DB.DB.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create test issuance record: %w", err)
	}
	return rec, nil
}
