package model

import "time"

const (
	EntryTypeDebit  = "DEBIT"
	EntryTypeCredit = "CREDIT"
)

// LedgerEntry is one leg of a posting. Rows are append-only.
type LedgerEntry struct {
	ID            string    `gorm:"primaryKey;size:36"`
	TransactionID string    `gorm:"size:36;not null;index"`
	WalletID      string    `gorm:"size:36;not null;index:idx_wallet_asset_created,priority:1"`
	AssetTypeID   string    `gorm:"size:36;not null;index:idx_wallet_asset_created,priority:2"`
	EntryType     string    `gorm:"size:8;not null"`
	Amount        int64     `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_wallet_asset_created,priority:3"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
