package model

import "time"

// OutboxEvent is written in the same DB transaction as the state change
// it announces. A relay polls unprocessed rows and forwards them to the
// broker, so publishing never races the commit.
type OutboxEvent struct {
	ID          uint64 `gorm:"primaryKey"`
	Aggregate   string `gorm:"size:64;not null"`
	AggregateID string `gorm:"size:36;not null;index"`
	EventType   string `gorm:"size:64;not null"`
	Payload     string `gorm:"type:jsonb;not null"`
	Processed   bool   `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
