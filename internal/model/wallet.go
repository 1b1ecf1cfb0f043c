package model

import "time"

const (
	OwnerTypeUser   = "USER"
	OwnerTypeSystem = "SYSTEM"

	SystemCodeTreasury = "TREASURY"
	SystemCodeIssuance = "ISSUANCE"
)

// Wallet is either a USER wallet (UserID set) or a SYSTEM wallet
// (SystemCode set), never both. Balances are derived from ledger
// entries; the row carries no balance column.
type Wallet struct {
	ID          string    `gorm:"primaryKey;size:36"`
	OwnerType   string    `gorm:"size:16;not null;uniqueIndex:uniq_user_wallet;uniqueIndex:uniq_system_wallet"`
	UserID      *string   `gorm:"size:36;uniqueIndex:uniq_user_wallet"`
	SystemCode  *string   `gorm:"size:32;uniqueIndex:uniq_system_wallet"`
	AssetTypeID string    `gorm:"size:36;not null;uniqueIndex:uniq_user_wallet;uniqueIndex:uniq_system_wallet"`
	Version     int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }
