package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gearshare/gearshare/pkg/rental"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore = "store"
	errorSubjectBooking = "booking"
	errorSubjectDay     = "day"
	errorCodeDuplicate  = "duplicate"
	errorCodeGet        = "get"
	errorCodeInsert     = "insert"
	errorCodeInvalid    = "invalid"
	errorCodeList       = "list"
	errorCodeMark       = "mark_range"
	errorCodeClear      = "clear"
	errorCodeUpdate     = "update_status"
)

// Store implements rental.Store using GORM.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the rental tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&BookingRow{}, &AvailabilityDayRow{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rental.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, inTx: true})
	})
}

func (store *Store) InsertBooking(ctx context.Context, booking rental.Booking) error {
	row := BookingRow{
		BookingID:       booking.ID.String(),
		ItemID:          booking.ItemID.String(),
		RenterID:        booking.RenterID.String(),
		OwnerID:         booking.OwnerID.String(),
		StartDate:       booking.StartDate.String(),
		EndDate:         booking.EndDate.String(),
		TotalPriceCents: booking.TotalPriceCents.Int64(),
		Status:          booking.Status.String(),
		CreatedAt:       booking.CreatedAt,
		UpdatedAt:       booking.UpdatedAt,
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID rental.BookingID) (rental.Booking, error) {
	var row BookingRow
	err := store.locked(ctx).
		Where("booking_id = ?", bookingID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rental.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, rental.ErrBookingNotFound)
		}
		return rental.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	booking, err := mapBookingRow(row)
	if err != nil {
		return rental.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, nil
}

func (store *Store) ListBlockingBookings(ctx context.Context, itemID rental.ItemID) ([]rental.Booking, error) {
	statuses := make([]string, 0, len(rental.BlockingStatuses))
	for _, status := range rental.BlockingStatuses {
		statuses = append(statuses, status.String())
	}
	var rows []BookingRow
	err := store.locked(ctx).
		Where("item_id = ? AND status IN ?", itemID.String(), statuses).
		Order("start_date").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookingRows(rows)
}

func (store *Store) ListBookingsForUser(ctx context.Context, userID rental.UserID, role rental.Role) ([]rental.Booking, error) {
	query := store.db.WithContext(ctx)
	switch role {
	case rental.RoleRenter:
		query = query.Where("renter_id = ?", userID.String())
	case rental.RoleOwner:
		query = query.Where("owner_id = ?", userID.String())
	default:
		query = query.Where("renter_id = ? OR owner_id = ?", userID.String(), userID.String())
	}
	var rows []BookingRow
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookingRows(rows)
}

func (store *Store) UpdateBookingStatus(ctx context.Context, bookingID rental.BookingID, from rental.BookingStatus, to rental.BookingStatus, updatedAt time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&BookingRow{}).
		Where("booking_id = ? AND status = ?", bookingID.String(), from.String()).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, rental.ErrInvalidTransition)
	}
	return nil
}

func (store *Store) MarkRange(ctx context.Context, itemID rental.ItemID, start rental.Date, end rental.Date, available bool, ref *rental.BookingID) error {
	if available {
		query := store.db.WithContext(ctx).
			Model(&AvailabilityDayRow{}).
			Where("item_id = ? AND day >= ? AND day <= ?", itemID.String(), start.String(), end.String())
		if ref != nil {
			// Release only the days bound to this booking so a stale
			// release cannot free days held by another booking.
			query = query.Where("booking_ref = ?", ref.String())
		}
		err := query.Updates(map[string]interface{}{
			"available":   true,
			"booking_ref": nil,
		}).Error
		if err != nil {
			return wrapStoreError(errorSubjectDay, errorCodeMark, err)
		}
		return nil
	}
	var bookingRef *string
	if ref != nil {
		value := ref.String()
		bookingRef = &value
	}
	// Reclaim days that are open or already bound to this booking, then
	// insert fresh rows. A surviving row is held by another blocking
	// booking, so the (item_id, day) key turns a lost confirmation race
	// into a constraint error instead of a silent overwrite.
	reclaim := store.db.WithContext(ctx).
		Where("item_id = ? AND day >= ? AND day <= ?", itemID.String(), start.String(), end.String())
	if bookingRef != nil {
		reclaim = reclaim.Where("available = ? OR booking_ref = ?", true, *bookingRef)
	} else {
		reclaim = reclaim.Where("available = ?", true)
	}
	if err := reclaim.Delete(&AvailabilityDayRow{}).Error; err != nil {
		return wrapStoreError(errorSubjectDay, errorCodeMark, err)
	}
	rows := make([]AvailabilityDayRow, 0, rental.DaysBetween(start, end)+1)
	for day := range rental.DaysInRange(start, end) {
		rows = append(rows, AvailabilityDayRow{
			ItemID:     itemID.String(),
			Day:        day.String(),
			Available:  false,
			BookingRef: bookingRef,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	err := store.db.WithContext(ctx).Create(&rows).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectDay, errorCodeDuplicate, rental.ErrDatesUnavailable)
	}
	if err != nil {
		return wrapStoreError(errorSubjectDay, errorCodeMark, err)
	}
	return nil
}

func (store *Store) IsDayAvailable(ctx context.Context, itemID rental.ItemID, day rental.Date) (bool, error) {
	var row AvailabilityDayRow
	err := store.db.WithContext(ctx).
		Where("item_id = ? AND day = ?", itemID.String(), day.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No record means the day was never booked.
		return true, nil
	}
	if err != nil {
		return false, wrapStoreError(errorSubjectDay, errorCodeGet, err)
	}
	return row.Available, nil
}

func (store *Store) ClearCalendar(ctx context.Context, itemID rental.ItemID) error {
	err := store.db.WithContext(ctx).
		Where("item_id = ?", itemID.String()).
		Delete(&AvailabilityDayRow{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectDay, errorCodeClear, err)
	}
	return nil
}

// locked applies a row lock to reads inside a transaction on postgres.
// Autocommit reads are advisory and take no lock. SQLite serializes
// writing transactions on its own and rejects FOR UPDATE syntax.
func (store *Store) locked(ctx context.Context) *gorm.DB {
	query := store.db.WithContext(ctx)
	if store.inTx && store.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func wrapStoreError(subject string, code string, err error) error {
	return rental.WrapError(errorOperationStore, subject, code, err)
}

func mapBookingRows(rows []BookingRow) ([]rental.Booking, error) {
	bookings := make([]rental.Booking, 0, len(rows))
	for _, row := range rows {
		booking, err := mapBookingRow(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

func mapBookingRow(row BookingRow) (rental.Booking, error) {
	bookingID, err := rental.NewBookingID(row.BookingID)
	if err != nil {
		return rental.Booking{}, err
	}
	itemID, err := rental.NewItemID(row.ItemID)
	if err != nil {
		return rental.Booking{}, err
	}
	renterID, err := rental.NewUserID(row.RenterID)
	if err != nil {
		return rental.Booking{}, err
	}
	ownerID, err := rental.NewUserID(row.OwnerID)
	if err != nil {
		return rental.Booking{}, err
	}
	startDate, err := rental.ParseDate(row.StartDate)
	if err != nil {
		return rental.Booking{}, err
	}
	endDate, err := rental.ParseDate(row.EndDate)
	if err != nil {
		return rental.Booking{}, err
	}
	totalPrice, err := rental.NewPriceCents(row.TotalPriceCents)
	if err != nil {
		return rental.Booking{}, err
	}
	status, err := rental.ParseBookingStatus(row.Status)
	if err != nil {
		return rental.Booking{}, err
	}
	return rental.Booking{
		ID:              bookingID,
		ItemID:          itemID,
		RenterID:        renterID,
		OwnerID:         ownerID,
		StartDate:       startDate,
		EndDate:         endDate,
		TotalPriceCents: totalPrice,
		Status:          status,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
