package models

import (
	"time"

	"github.com/amirphl/Kiriban/utils"
	"gorm.io/gorm"
)

// IssuanceStatus is the lifecycle state of an issuance guard
type IssuanceStatus string

const (
	IssuanceStatusPending  IssuanceStatus = "pending"
	IssuanceStatusIssued   IssuanceStatus = "issued"
	IssuanceStatusOrphaned IssuanceStatus = "orphaned"
)

// IssuanceRecord guards the single token issuance allowed for a milestone.
// The (counter_id, count) unique index is the idempotency boundary.
type IssuanceRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CounterID string         `gorm:"size:64;not null;uniqueIndex:uk_issuance_records_counter_count,priority:1" json:"counter_id"`
	Count     int64          `gorm:"not null;uniqueIndex:uk_issuance_records_counter_count,priority:2" json:"count"`
	Status    IssuanceStatus `gorm:"size:16;not null;index:idx_issuance_records_status" json:"status"`
	OwnerID   string         `gorm:"size:128;not null" json:"owner_id"`
	TokenID   *string        `gorm:"size:78" json:"token_id,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index:idx_issuance_records_created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for IssuanceRecord
func (IssuanceRecord) TableName() string { return "issuance_records" }

func (r *IssuanceRecord) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = IssuanceStatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return nil
}

// IssuanceRecordFilter provides filter fields for repository queries
type IssuanceRecordFilter struct {
	CounterID     *string
	Status        *IssuanceStatus
	CreatedBefore *time.Time
}
