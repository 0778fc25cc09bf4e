package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ItemRow mirrors the items table. Location and parameters are
// free-form JSON payloads owned by the client; the catalog never
// interprets them.
type ItemRow struct {
	ItemID           string         `gorm:"type:uuid;primaryKey"`
	OwnerID          string         `gorm:"not null;index:idx_items_owner"`
	Title            string         `gorm:"not null"`
	Description      string         `gorm:"not null"`
	Category         string         `gorm:"not null;index:idx_items_category"`
	Status           string         `gorm:"not null;index:idx_items_status"`
	DailyRateCents   int64          `gorm:"not null"`
	WeeklyRateCents  *int64         `gorm:""`
	MonthlyRateCents *int64         `gorm:""`
	Location         datatypes.JSON `gorm:""`
	Parameters       datatypes.JSON `gorm:""`
	Images           datatypes.JSON `gorm:""`
	CreatedAt        time.Time      `gorm:"not null;index:idx_items_created"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (ItemRow) TableName() string { return "items" }

func (row *ItemRow) BeforeCreate(tx *gorm.DB) error {
	if row.ItemID == "" {
		row.ItemID = uuid.NewString()
	}
	return nil
}
