package rental

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PriceCents is an integer currency amount in cents.
type PriceCents int64

// NewPriceCents validates a non-negative amount.
func NewPriceCents(raw int64) (PriceCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidPriceCents)
	}
	return PriceCents(raw), nil
}

// Int64 returns the raw amount.
func (price PriceCents) Int64() int64 {
	return int64(price)
}

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// ItemID identifies a listed item.
type ItemID struct {
	value string
}

// UserID identifies a marketplace user.
type UserID struct {
	value string
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// NewItemID validates and normalizes an item id.
func NewItemID(raw string) (ItemID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ItemID{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	return ItemID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ItemID) String() string {
	return id.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// BookingStatus defines the booking lifecycle.
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// BlockingStatuses are the statuses that occupy calendar days and exclude
// other bookings.
var BlockingStatuses = []BookingStatus{BookingStatusConfirmed, BookingStatusInProgress}

// ParseBookingStatus validates a stored status value.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(raw) {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress, BookingStatusCompleted, BookingStatusCancelled:
		return BookingStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// String returns the status value.
func (status BookingStatus) String() string {
	return string(status)
}

// IsBlocking reports whether the status occupies calendar days.
func (status BookingStatus) IsBlocking() bool {
	return status == BookingStatusConfirmed || status == BookingStatusInProgress
}

// Role filters bookings by the side of the rental a user is on.
type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
	RoleAll    Role = "all"
)

// ParseRole validates a listing role, defaulting empty input to RoleAll.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleRenter, RoleOwner, RoleAll:
		return Role(raw), nil
	case "":
		return RoleAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// Booking is a rental record. Ownership is captured at creation time and
// never re-derived from the item.
type Booking struct {
	ID              BookingID
	ItemID          ItemID
	RenterID        UserID
	OwnerID         UserID
	StartDate       Date
	EndDate         Date
	TotalPriceCents PriceCents
	Status          BookingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsParticipant reports whether the user is the booking's renter or owner.
func (booking Booking) IsParticipant(userID UserID) bool {
	return booking.RenterID == userID || booking.OwnerID == userID
}

// AvailabilityDay is one derived calendar entry for an item. Absence of a
// record for a day means the day is open.
type AvailabilityDay struct {
	ItemID     ItemID
	Day        Date
	Available  bool
	BookingRef *BookingID
}

// ItemStatus defines the listing lifecycle.
type ItemStatus string

const (
	ItemStatusDraft    ItemStatus = "draft"
	ItemStatusActive   ItemStatus = "active"
	ItemStatusInactive ItemStatus = "inactive"
	ItemStatusArchived ItemStatus = "archived"
)

// Item is the slice of a listing the rental core reads.
type Item struct {
	ID             ItemID
	OwnerID        UserID
	Title          string
	Status         ItemStatus
	DailyRateCents PriceCents
}

// ItemCatalog resolves items for the booking workflow.
type ItemCatalog interface {
	GetItem(ctx context.Context, itemID ItemID) (Item, error)
}

// Notifier delivers best-effort notifications. Implementations must not
// surface delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, userID UserID, kind string, title string, body string)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	InsertBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	// ListBlockingBookings returns the item's bookings in a blocking
	// status. Inside a transaction the rows are locked until commit.
	ListBlockingBookings(ctx context.Context, itemID ItemID) ([]Booking, error)
	ListBookingsForUser(ctx context.Context, userID UserID, role Role) ([]Booking, error)
	// UpdateBookingStatus flips the status only when the current value
	// matches from, returning ErrInvalidTransition otherwise.
	UpdateBookingStatus(ctx context.Context, bookingID BookingID, from BookingStatus, to BookingStatus, updatedAt time.Time) error
	// MarkRange writes one calendar entry per day in [start, end]. With
	// available=false every day is bound to ref; a day already held by a
	// different booking fails the whole range with ErrDatesUnavailable.
	// With available=true only days bound to ref are released, so a
	// release can never free days held by another booking.
	MarkRange(ctx context.Context, itemID ItemID, start Date, end Date, available bool, ref *BookingID) error
	IsDayAvailable(ctx context.Context, itemID ItemID, day Date) (bool, error)
	ClearCalendar(ctx context.Context, itemID ItemID) error
}
