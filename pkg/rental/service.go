package rental

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the booking ledger: the sole authority for creating
// bookings and transitioning their status. It owns the no-double-booking
// invariant and keeps the availability projection in step with it.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Today returns the current calendar day per the injected clock.
func (service *Service) Today() Date {
	return DateOf(service.nowFn().UTC())
}

// CheckAvailability reports whether no blocking booking overlaps the
// requested inclusive range. The result is advisory: availability can go
// stale between request and confirmation, so TransitionStatus re-checks
// inside its transaction.
func (service *Service) CheckAvailability(ctx context.Context, itemID ItemID, start Date, end Date) (bool, error) {
	if end.Before(start) {
		return false, fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange, end, start)
	}
	blocking, err := service.store.ListBlockingBookings(ctx, itemID)
	if err != nil {
		return false, err
	}
	for _, booking := range blocking {
		if Overlaps(booking.StartDate, booking.EndDate, start, end) {
			return false, nil
		}
	}
	return true, nil
}

// CreateBooking records a new booking in pending status. Callers are
// expected to have checked availability first; the range and
// renter/owner distinctness are still validated here.
func (service *Service) CreateBooking(ctx context.Context, itemID ItemID, renterID UserID, ownerID UserID, start Date, end Date, totalPrice PriceCents) (Booking, error) {
	if end.Before(start) {
		return Booking{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange, end, start)
	}
	if renterID == ownerID {
		return Booking{}, ErrSelfRental
	}
	bookingID, err := NewBookingID(uuid.NewString())
	if err != nil {
		return Booking{}, err
	}
	now := service.nowFn().UTC()
	booking := Booking{
		ID:              bookingID,
		ItemID:          itemID,
		RenterID:        renterID,
		OwnerID:         ownerID,
		StartDate:       start,
		EndDate:         end,
		TotalPriceCents: totalPrice,
		Status:          BookingStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := service.store.InsertBooking(ctx, booking); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// GetBooking fetches a booking by id.
func (service *Service) GetBooking(ctx context.Context, bookingID BookingID) (Booking, error) {
	return service.store.GetBooking(ctx, bookingID)
}

// ListForUser returns the user's bookings filtered by role, newest
// created first.
func (service *Service) ListForUser(ctx context.Context, userID UserID, role Role) ([]Booking, error) {
	return service.store.ListBookingsForUser(ctx, userID, role)
}

// IsDayAvailable is a point lookup into the availability projection. A
// day with no record is open.
func (service *Service) IsDayAvailable(ctx context.Context, itemID ItemID, day Date) (bool, error) {
	return service.store.IsDayAvailable(ctx, itemID, day)
}

type transitionActor int

const (
	actorOwner transitionActor = iota
	actorParticipant
)

// allowedTransitions is the full status machine. confirmed→in_progress is
// reachable only through TransitionStatus directly; no workflow drives it
// yet.
var allowedTransitions = map[BookingStatus]map[BookingStatus]transitionActor{
	BookingStatusPending: {
		BookingStatusConfirmed: actorOwner,
		BookingStatusCancelled: actorOwner,
	},
	BookingStatusConfirmed: {
		BookingStatusCompleted:  actorParticipant,
		BookingStatusInProgress: actorParticipant,
	},
	BookingStatusInProgress: {
		BookingStatusCompleted: actorParticipant,
	},
}

// TransitionStatus moves a booking through the lifecycle table and keeps
// the availability projection consistent: entering a blocking status
// occupies every day of the range, leaving one releases exactly the days
// bound to this booking. The overlap re-check, status flip, and calendar
// write happen in one transaction, and the store refuses to occupy a day
// already held by another booking, so at most one booking can hold a
// blocking status over any (item, day) pair even when two confirmations
// race.
func (service *Service) TransitionStatus(ctx context.Context, bookingID BookingID, actorID UserID, to BookingStatus) (Booking, error) {
	var updated Booking
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		booking, err := txStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		actor, allowed := allowedTransitions[booking.Status][to]
		if !allowed {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, booking.Status, to)
		}
		switch actor {
		case actorOwner:
			if booking.OwnerID != actorID {
				return fmt.Errorf("%w: only the owner may move a booking to %s", ErrForbidden, to)
			}
		case actorParticipant:
			if !booking.IsParticipant(actorID) {
				return fmt.Errorf("%w: only the owner or renter may move a booking to %s", ErrForbidden, to)
			}
		}
		if to.IsBlocking() && !booking.Status.IsBlocking() {
			if err := service.ensureNoOverlap(ctx, txStore, booking); err != nil {
				return err
			}
		}
		now := service.nowFn().UTC()
		if err := txStore.UpdateBookingStatus(ctx, bookingID, booking.Status, to, now); err != nil {
			return err
		}
		ref := booking.ID
		if to.IsBlocking() && !booking.Status.IsBlocking() {
			if err := txStore.MarkRange(ctx, booking.ItemID, booking.StartDate, booking.EndDate, false, &ref); err != nil {
				return err
			}
		}
		if !to.IsBlocking() && (booking.Status.IsBlocking() || to == BookingStatusCancelled) {
			if err := txStore.MarkRange(ctx, booking.ItemID, booking.StartDate, booking.EndDate, true, &ref); err != nil {
				return err
			}
		}
		updated = booking
		updated.Status = to
		updated.UpdatedAt = now
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationTransition,
		BookingID: bookingID,
		ActorID:   actorID,
		To:        to,
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	return updated, nil
}

// RebuildCalendar discards the item's availability projection and replays
// every blocking booking into a fresh one. The booking ledger is the
// source of truth; the projection is only a cache of it.
func (service *Service) RebuildCalendar(ctx context.Context, itemID ItemID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if err := txStore.ClearCalendar(ctx, itemID); err != nil {
			return err
		}
		blocking, err := txStore.ListBlockingBookings(ctx, itemID)
		if err != nil {
			return err
		}
		for _, booking := range blocking {
			ref := booking.ID
			if err := txStore.MarkRange(ctx, itemID, booking.StartDate, booking.EndDate, false, &ref); err != nil {
				return err
			}
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRebuild,
		ItemID:    itemID,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) ensureNoOverlap(ctx context.Context, txStore Store, booking Booking) error {
	blocking, err := txStore.ListBlockingBookings(ctx, booking.ItemID)
	if err != nil {
		return err
	}
	for _, other := range blocking {
		if other.ID == booking.ID {
			continue
		}
		if Overlaps(other.StartDate, other.EndDate, booking.StartDate, booking.EndDate) {
			return fmt.Errorf("%w: overlaps booking %s", ErrDatesUnavailable, other.ID)
		}
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
