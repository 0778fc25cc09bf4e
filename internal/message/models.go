package message

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRow mirrors the messages table. Threads are keyed by the
// booking the two parties share.
type MessageRow struct {
	MessageID  string     `gorm:"type:uuid;primaryKey"`
	BookingID  string     `gorm:"not null;index:idx_messages_booking"`
	SenderID   string     `gorm:"not null;index:idx_messages_sender"`
	ReceiverID string     `gorm:"not null;index:idx_messages_receiver"`
	Content    string     `gorm:"not null"`
	Kind       string     `gorm:"not null"`
	ReadAt     *time.Time `gorm:""`
	CreatedAt  time.Time  `gorm:"not null;index:idx_messages_created"`
}

func (MessageRow) TableName() string { return "messages" }

func (row *MessageRow) BeforeCreate(tx *gorm.DB) error {
	if row.MessageID == "" {
		row.MessageID = uuid.NewString()
	}
	return nil
}
