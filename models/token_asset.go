package models

import (
	"encoding/json"
	"time"

	"github.com/amirphl/Kiriban/utils"
	"gorm.io/gorm"
)

// AssetMetadata is the public token metadata document
type AssetMetadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
}

// TokenAsset is the commemorative image and metadata generated for one issued token.
// Rows are write-once.
type TokenAsset struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	CounterID      string    `gorm:"size:64;not null;uniqueIndex:uk_token_assets_counter_token,priority:1" json:"counter_id"`
	TokenID        string    `gorm:"size:78;not null;uniqueIndex:uk_token_assets_counter_token,priority:2" json:"token_id"`
	MilestoneCount int64     `gorm:"not null" json:"milestone_count"`
	Metadata       []byte    `gorm:"not null" json:"-"`
	ImagePNG       []byte    `gorm:"not null" json:"-"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for TokenAsset
func (TokenAsset) TableName() string { return "token_assets" }

func (a *TokenAsset) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DecodeMetadata parses the stored metadata document
func (a *TokenAsset) DecodeMetadata() (*AssetMetadata, error) {
	var m AssetMetadata
	if err := json.Unmarshal(a.Metadata, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
