package model

import "time"

// AssetType is immutable after creation.
type AssetType struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Code      string    `gorm:"size:50;not null;uniqueIndex"`
	Name      string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AssetType) TableName() string { return "asset_types" }
