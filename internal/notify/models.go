package notify

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRow mirrors the notifications table. ReadAt is nil while
// the notification is unread.
type NotificationRow struct {
	NotificationID string     `gorm:"type:uuid;primaryKey"`
	UserID         string     `gorm:"not null;index:idx_notifications_user"`
	Kind           string     `gorm:"not null"`
	Title          string     `gorm:"not null"`
	Body           string     `gorm:"not null"`
	ReadAt         *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null;index:idx_notifications_created"`
}

func (NotificationRow) TableName() string { return "notifications" }

func (row *NotificationRow) BeforeCreate(tx *gorm.DB) error {
	if row.NotificationID == "" {
		row.NotificationID = uuid.NewString()
	}
	return nil
}
