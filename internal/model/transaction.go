package model

import "time"

const (
	TxTypeTopup = "TOPUP"
	TxTypeBonus = "BONUS"
	TxTypeSpend = "SPEND"

	TxStatusProcessing = "PROCESSING"
	TxStatusPosted     = "POSTED"
	TxStatusFailed     = "FAILED"
)

// Transaction doubles as the audit record and the idempotency log.
// ResponseCode and ResponseBody are set together once the transaction
// reaches a terminal status.
type Transaction struct {
	ID                  string    `gorm:"primaryKey;size:36"`
	IdempotencyKey      string    `gorm:"size:255;not null;uniqueIndex"`
	RequestFingerprint  string    `gorm:"size:64;not null"`
	Type                string    `gorm:"size:16;not null"`
	Status              string    `gorm:"size:16;not null"`
	Amount              int64     `gorm:"not null"`
	AssetTypeID         string    `gorm:"size:36;not null"`
	SourceWalletID      string    `gorm:"size:36;not null"`
	DestinationWalletID string    `gorm:"size:36;not null"`
	ResponseCode        *int      `gorm:""`
	ResponseBody        *string   `gorm:"type:jsonb"`
	ErrorCode           *string   `gorm:"size:64"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (Transaction) TableName() string { return "transactions" }
