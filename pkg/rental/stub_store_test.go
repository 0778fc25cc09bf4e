package rental

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"
)

// fixedNow pins the injected clock so "today" is deterministic.
var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type calendarKey struct {
	itemID ItemID
	day    string
}

// stubStore is an in-memory Store for service and workflow tests.
type stubStore struct {
	bookings map[BookingID]Booking
	inserted []BookingID
	calendar map[calendarKey]AvailabilityDay

	insertBookingError error
	getBookingError    error
	listBlockingError  error
	updateStatusError  error
	markRangeError     error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		bookings: make(map[BookingID]Booking),
		calendar: make(map[calendarKey]AvailabilityDay),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) InsertBooking(_ context.Context, booking Booking) error {
	if store.insertBookingError != nil {
		return store.insertBookingError
	}
	store.bookings[booking.ID] = booking
	store.inserted = append(store.inserted, booking.ID)
	return nil
}

func (store *stubStore) GetBooking(_ context.Context, bookingID BookingID) (Booking, error) {
	if store.getBookingError != nil {
		return Booking{}, store.getBookingError
	}
	booking, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

func (store *stubStore) ListBlockingBookings(_ context.Context, itemID ItemID) ([]Booking, error) {
	if store.listBlockingError != nil {
		return nil, store.listBlockingError
	}
	var blocking []Booking
	for _, id := range store.inserted {
		booking := store.bookings[id]
		if booking.ItemID == itemID && booking.Status.IsBlocking() {
			blocking = append(blocking, booking)
		}
	}
	return blocking, nil
}

func (store *stubStore) ListBookingsForUser(_ context.Context, userID UserID, role Role) ([]Booking, error) {
	var matched []Booking
	for _, id := range store.inserted {
		booking := store.bookings[id]
		asRenter := booking.RenterID == userID
		asOwner := booking.OwnerID == userID
		switch role {
		case RoleRenter:
			if asRenter {
				matched = append(matched, booking)
			}
		case RoleOwner:
			if asOwner {
				matched = append(matched, booking)
			}
		default:
			if asRenter || asOwner {
				matched = append(matched, booking)
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func (store *stubStore) UpdateBookingStatus(_ context.Context, bookingID BookingID, from BookingStatus, to BookingStatus, updatedAt time.Time) error {
	if store.updateStatusError != nil {
		return store.updateStatusError
	}
	booking, ok := store.bookings[bookingID]
	if !ok || booking.Status != from {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	booking.Status = to
	booking.UpdatedAt = updatedAt
	store.bookings[bookingID] = booking
	return nil
}

func (store *stubStore) MarkRange(_ context.Context, itemID ItemID, start Date, end Date, available bool, ref *BookingID) error {
	if store.markRangeError != nil {
		return store.markRangeError
	}
	for day := range DaysInRange(start, end) {
		key := calendarKey{itemID: itemID, day: day.String()}
		if available {
			existing, ok := store.calendar[key]
			if ref != nil && (!ok || existing.BookingRef == nil || *existing.BookingRef != *ref) {
				continue
			}
			store.calendar[key] = AvailabilityDay{ItemID: itemID, Day: day, Available: true}
			continue
		}
		if existing, ok := store.calendar[key]; ok && !existing.Available {
			if ref == nil || existing.BookingRef == nil || *existing.BookingRef != *ref {
				return fmt.Errorf("%w: %s", ErrDatesUnavailable, day)
			}
		}
		store.calendar[key] = AvailabilityDay{ItemID: itemID, Day: day, Available: false, BookingRef: ref}
	}
	return nil
}

func (store *stubStore) IsDayAvailable(_ context.Context, itemID ItemID, day Date) (bool, error) {
	entry, ok := store.calendar[calendarKey{itemID: itemID, day: day.String()}]
	if !ok {
		return true, nil
	}
	return entry.Available, nil
}

func (store *stubStore) ClearCalendar(_ context.Context, itemID ItemID) error {
	for key := range store.calendar {
		if key.itemID == itemID {
			delete(store.calendar, key)
		}
	}
	return nil
}

func (store *stubStore) mustDay(test *testing.T, itemID ItemID, day Date) AvailabilityDay {
	test.Helper()
	entry, ok := store.calendar[calendarKey{itemID: itemID, day: day.String()}]
	if !ok {
		test.Fatalf("expected calendar entry for %s", day)
	}
	return entry
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustItemID(test *testing.T, raw string) ItemID {
	test.Helper()
	itemID, err := NewItemID(raw)
	if err != nil {
		test.Fatalf("item id: %v", err)
	}
	return itemID
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, fixedClock)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustCreatePending(test *testing.T, service *Service, itemID ItemID, renter string, owner string, start string, end string) Booking {
	test.Helper()
	booking, err := service.CreateBooking(
		context.Background(),
		itemID,
		mustUserID(test, renter),
		mustUserID(test, owner),
		mustDate(test, start),
		mustDate(test, end),
		PriceCents(10000),
	)
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	return booking
}
