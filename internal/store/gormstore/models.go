package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingRow mirrors the bookings table. Dates are stored in the
// canonical day-only ISO form; all overlap arithmetic happens in the
// domain package, never in SQL.
type BookingRow struct {
	BookingID       string    `gorm:"type:uuid;primaryKey"`
	ItemID          string    `gorm:"not null;index:idx_bookings_item_status,priority:1"`
	RenterID        string    `gorm:"not null;index:idx_bookings_renter"`
	OwnerID         string    `gorm:"not null;index:idx_bookings_owner"`
	StartDate       string    `gorm:"type:varchar(10);not null"`
	EndDate         string    `gorm:"type:varchar(10);not null"`
	TotalPriceCents int64     `gorm:"not null"`
	Status          string    `gorm:"not null;index:idx_bookings_item_status,priority:2"`
	CreatedAt       time.Time `gorm:"not null;index:idx_bookings_created"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BookingRow) TableName() string { return "bookings" }

func (row *BookingRow) BeforeCreate(tx *gorm.DB) error {
	if row.BookingID == "" {
		row.BookingID = uuid.NewString()
	}
	return nil
}

// AvailabilityDayRow mirrors the availability_days table. The composite
// primary key guarantees at most one record per (item, day) pair.
type AvailabilityDayRow struct {
	ItemID     string  `gorm:"primaryKey"`
	Day        string  `gorm:"type:varchar(10);primaryKey"`
	Available  bool    `gorm:"not null"`
	BookingRef *string `gorm:"index:idx_availability_booking_ref"`
}

func (AvailabilityDayRow) TableName() string { return "availability_days" }
