// Package models contains the persistent domain entities and their gorm mappings
package models

import (
	"time"

	"github.com/amirphl/Kiriban/utils"
	"gorm.io/gorm"
)

// MilestoneKind selects the rule used to classify a counter's tally
type MilestoneKind string

const (
	// MilestoneRoundOrRepdigit100 matches round or repdigit numbers from 100 upwards
	MilestoneRoundOrRepdigit100 MilestoneKind = "round_or_repdigit_100"
	// MilestoneRoundOrRepdigit10 matches round or repdigit numbers from 10 upwards
	MilestoneRoundOrRepdigit10 MilestoneKind = "round_or_repdigit_10"
)

// Counter is one embeddable visit tally.
// Count is only ever changed through CounterRepository.Increment.
type Counter struct {
	ID            uint          `gorm:"primaryKey" json:"-"`
	CounterID     string        `gorm:"size:64;not null;uniqueIndex:uk_counters_counter_id" json:"counter_id"`
	Count         int64         `gorm:"not null" json:"count"`
	DigitWidth    int           `gorm:"not null" json:"digit_width"`
	LastAccessor  *string       `gorm:"size:255" json:"last_accessor,omitempty"`
	MilestoneKind MilestoneKind `gorm:"size:32;not null" json:"milestone_kind"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for Counter
func (Counter) TableName() string { return "counters" }

// BeforeCreate fills timestamps and the default milestone kind
func (c *Counter) BeforeCreate(tx *gorm.DB) error {
	if c.MilestoneKind == "" {
		c.MilestoneKind = MilestoneRoundOrRepdigit100
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}
