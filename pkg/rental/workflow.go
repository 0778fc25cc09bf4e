package rental

import (
	"context"
	"fmt"
)

// Workflow orchestrates booking requests over the ledger, the item
// catalog, and the notifier. Every entry point enforces the permission
// and self-rental rules before touching the ledger.
type Workflow struct {
	service  *Service
	catalog  ItemCatalog
	notifier Notifier
}

// NewWorkflow wires a Workflow.
func NewWorkflow(service *Service, catalog ItemCatalog, notifier Notifier) (*Workflow, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", ErrInvalidServiceConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier dependency is nil", ErrInvalidServiceConfig)
	}
	return &Workflow{service: service, catalog: catalog, notifier: notifier}, nil
}

// RequestBooking validates and creates a pending booking, then notifies
// the item owner. Notification delivery is fire-and-forget: its failure
// never rolls the booking back.
func (workflow *Workflow) RequestBooking(ctx context.Context, renterID UserID, itemID ItemID, start Date, end Date) (Booking, error) {
	booking, err := workflow.requestBooking(ctx, renterID, itemID, start, end)
	workflow.service.logOperation(ctx, OperationLog{
		Operation: operationRequest,
		BookingID: booking.ID,
		ItemID:    itemID,
		ActorID:   renterID,
		Error:     err,
	})
	return booking, err
}

func (workflow *Workflow) requestBooking(ctx context.Context, renterID UserID, itemID ItemID, start Date, end Date) (Booking, error) {
	if end.Before(start) {
		return Booking{}, fmt.Errorf("%w: end date must not be before start date", ErrInvalidDateRange)
	}
	if start.Before(workflow.service.Today()) {
		return Booking{}, fmt.Errorf("%w: start date %s", ErrStartDateInPast, start)
	}
	item, err := workflow.catalog.GetItem(ctx, itemID)
	if err != nil {
		return Booking{}, err
	}
	if item.Status != ItemStatusActive {
		return Booking{}, fmt.Errorf("%w: status %s", ErrItemNotActive, item.Status)
	}
	if item.OwnerID == renterID {
		return Booking{}, ErrSelfRental
	}
	available, err := workflow.service.CheckAvailability(ctx, itemID, start, end)
	if err != nil {
		return Booking{}, err
	}
	if !available {
		return Booking{}, fmt.Errorf("%w: %s to %s", ErrDatesUnavailable, start, end)
	}
	totalPrice, err := TotalPrice(item.DailyRateCents, start, end)
	if err != nil {
		return Booking{}, err
	}
	booking, err := workflow.service.CreateBooking(ctx, itemID, renterID, item.OwnerID, start, end, totalPrice)
	if err != nil {
		return Booking{}, err
	}
	go workflow.notifier.Notify(context.WithoutCancel(ctx),
		item.OwnerID,
		notificationKindRequest,
		"New rental request",
		fmt.Sprintf("A renter requested %q from %s to %s", item.Title, start, end),
	)
	return booking, nil
}

// DecideBooking lets the item owner confirm or reject a pending booking
// and notifies the renter of the outcome.
func (workflow *Workflow) DecideBooking(ctx context.Context, ownerID UserID, bookingID BookingID, confirm bool) (Booking, error) {
	booking, err := workflow.decideBooking(ctx, ownerID, bookingID, confirm)
	workflow.service.logOperation(ctx, OperationLog{
		Operation: operationDecide,
		BookingID: bookingID,
		ActorID:   ownerID,
		To:        booking.Status,
		Error:     err,
	})
	return booking, err
}

func (workflow *Workflow) decideBooking(ctx context.Context, ownerID UserID, bookingID BookingID, confirm bool) (Booking, error) {
	booking, err := workflow.service.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if booking.OwnerID != ownerID {
		return Booking{}, fmt.Errorf("%w: only the owner may decide a booking", ErrForbidden)
	}
	if booking.Status != BookingStatusPending {
		return Booking{}, fmt.Errorf("%w: status %s", ErrBookingNotPending, booking.Status)
	}
	to := BookingStatusCancelled
	kind := notificationKindRejected
	outcome := "rejected"
	if confirm {
		to = BookingStatusConfirmed
		kind = notificationKindConfirmed
		outcome = "confirmed"
	}
	updated, err := workflow.service.TransitionStatus(ctx, bookingID, ownerID, to)
	if err != nil {
		return Booking{}, err
	}
	go workflow.notifier.Notify(context.WithoutCancel(ctx),
		updated.RenterID,
		kind,
		"Rental request processed",
		fmt.Sprintf("Your rental request for %s to %s was %s", updated.StartDate, updated.EndDate, outcome),
	)
	return updated, nil
}

// CompleteBooking marks a confirmed or in-progress booking completed.
// Either participant may complete.
func (workflow *Workflow) CompleteBooking(ctx context.Context, actorID UserID, bookingID BookingID) (Booking, error) {
	booking, err := workflow.completeBooking(ctx, actorID, bookingID)
	workflow.service.logOperation(ctx, OperationLog{
		Operation: operationComplete,
		BookingID: bookingID,
		ActorID:   actorID,
		To:        BookingStatusCompleted,
		Error:     err,
	})
	return booking, err
}

func (workflow *Workflow) completeBooking(ctx context.Context, actorID UserID, bookingID BookingID) (Booking, error) {
	booking, err := workflow.service.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !booking.IsParticipant(actorID) {
		return Booking{}, fmt.Errorf("%w: only a participant may complete a booking", ErrForbidden)
	}
	if !booking.Status.IsBlocking() {
		return Booking{}, fmt.Errorf("%w: status %s", ErrBookingNotCompletable, booking.Status)
	}
	return workflow.service.TransitionStatus(ctx, bookingID, actorID, BookingStatusCompleted)
}

// GetBooking returns a booking to one of its participants.
func (workflow *Workflow) GetBooking(ctx context.Context, actorID UserID, bookingID BookingID) (Booking, error) {
	booking, err := workflow.service.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !booking.IsParticipant(actorID) {
		return Booking{}, fmt.Errorf("%w: not a participant of this booking", ErrForbidden)
	}
	return booking, nil
}

// ListBookings returns the user's bookings filtered by role.
func (workflow *Workflow) ListBookings(ctx context.Context, userID UserID, role Role) ([]Booking, error) {
	return workflow.service.ListForUser(ctx, userID, role)
}
