package message

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gearshare/gearshare/pkg/rental"
)

// Validation errors for the messaging surface.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message content must not be empty")
	ErrInvalidReceiver = errors.New("receiver must be the other booking party")
	ErrSelfMessage     = errors.New("cannot send a message to yourself")
	ErrUnknownKind     = errors.New("unknown message kind")
)

// Message kinds carried on the wire.
const (
	KindText  = "text"
	KindImage = "image"
)

const (
	errorOperationMessage = "message"
	errorSubjectMessage   = "message"
	errorCodeSend         = "send"
	errorCodeList         = "list"
	errorCodeMarkRead     = "mark_read"

	notificationKindMessage = "new_message"
)

// BookingLookup resolves bookings for thread authorization.
// rental.Service satisfies it.
type BookingLookup interface {
	GetBooking(ctx context.Context, bookingID rental.BookingID) (rental.Booking, error)
}

// Message is one entry in a booking thread.
type Message struct {
	ID         string
	BookingID  rental.BookingID
	SenderID   rental.UserID
	ReceiverID rental.UserID
	Content    string
	Kind       string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

// Conversation summarizes one booking thread for a user.
type Conversation struct {
	BookingID     rental.BookingID
	OtherParty    rental.UserID
	LastContent   string
	LastMessageAt time.Time
	UnreadCount   int
}

// Service stores booking-scoped messages between renter and owner.
type Service struct {
	db       *gorm.DB
	bookings BookingLookup
	notifier rental.Notifier
	nowFn    func() time.Time
}

// New returns a Service backed by db. The notifier may be nil when
// message notifications are not wanted.
func New(db *gorm.DB, bookings BookingLookup, notifier rental.Notifier, now func() time.Time) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle must not be nil", rental.ErrInvalidServiceConfig)
	}
	if bookings == nil {
		return nil, fmt.Errorf("%w: booking lookup must not be nil", rental.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock must not be nil", rental.ErrInvalidServiceConfig)
	}
	return &Service{db: db, bookings: bookings, notifier: notifier, nowFn: now}, nil
}

// Migrate creates or updates the messages table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MessageRow{})
}

// Send stores a message from senderID to receiverID on the booking's
// thread. Both parties must belong to the booking and the receiver is
// notified best effort.
func (service *Service) Send(ctx context.Context, bookingID rental.BookingID, senderID rental.UserID, receiverID rental.UserID, content string, kind string) (Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Message{}, ErrEmptyMessage
	}
	if kind == "" {
		kind = KindText
	}
	if kind != KindText && kind != KindImage {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	booking, err := service.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Message{}, err
	}
	if !booking.IsParticipant(senderID) {
		return Message{}, rental.ErrForbidden
	}
	if senderID == receiverID {
		return Message{}, ErrSelfMessage
	}
	if !booking.IsParticipant(receiverID) {
		return Message{}, ErrInvalidReceiver
	}

	row := MessageRow{
		BookingID:  bookingID.String(),
		SenderID:   senderID.String(),
		ReceiverID: receiverID.String(),
		Content:    trimmed,
		Kind:       kind,
		CreatedAt:  service.nowFn().UTC(),
	}
	if err := service.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Message{}, wrapMessageError(errorCodeSend, err)
	}
	if service.notifier != nil {
		go service.notifier.Notify(context.WithoutCancel(ctx), receiverID, notificationKindMessage,
			"New message", fmt.Sprintf("New message about booking %s", bookingID))
	}
	return mapMessageRow(row)
}

// ListThread returns the booking's messages oldest first. Only the
// booking's parties may read the thread.
func (service *Service) ListThread(ctx context.Context, bookingID rental.BookingID, actorID rental.UserID) ([]Message, error) {
	booking, err := service.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(actorID) {
		return nil, rental.ErrForbidden
	}
	var rows []MessageRow
	err = service.db.WithContext(ctx).
		Where("booking_id = ?", bookingID.String()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapMessageError(errorCodeList, err)
	}
	return mapMessageRows(rows)
}

// ListConversations summarizes every thread the user participates in,
// most recent activity first.
func (service *Service) ListConversations(ctx context.Context, userID rental.UserID) ([]Conversation, error) {
	var rows []MessageRow
	err := service.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID.String(), userID.String()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapMessageError(errorCodeList, err)
	}

	byBooking := map[string]*Conversation{}
	order := make([]string, 0)
	for _, row := range rows {
		conversation, seen := byBooking[row.BookingID]
		if !seen {
			bookingID, err := rental.NewBookingID(row.BookingID)
			if err != nil {
				return nil, wrapMessageError(errorCodeList, err)
			}
			conversation = &Conversation{BookingID: bookingID}
			byBooking[row.BookingID] = conversation
			order = append(order, row.BookingID)
		}
		other := row.SenderID
		if other == userID.String() {
			other = row.ReceiverID
		}
		otherParty, err := rental.NewUserID(other)
		if err != nil {
			return nil, wrapMessageError(errorCodeList, err)
		}
		conversation.OtherParty = otherParty
		conversation.LastContent = row.Content
		conversation.LastMessageAt = row.CreatedAt
		if row.ReceiverID == userID.String() && row.ReadAt == nil {
			conversation.UnreadCount++
		}
	}

	conversations := make([]Conversation, 0, len(order))
	for _, bookingID := range order {
		conversations = append(conversations, *byBooking[bookingID])
	}
	sort.Slice(conversations, func(left int, right int) bool {
		return conversations[left].LastMessageAt.After(conversations[right].LastMessageAt)
	})
	return conversations, nil
}

// MarkRead stamps a message addressed to userID.
func (service *Service) MarkRead(ctx context.Context, messageID string, userID rental.UserID) error {
	now := service.nowFn().UTC()
	result := service.db.WithContext(ctx).
		Model(&MessageRow{}).
		Where("message_id = ? AND receiver_id = ?", messageID, userID.String()).
		Update("read_at", &now)
	if result.Error != nil {
		return wrapMessageError(errorCodeMarkRead, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func wrapMessageError(code string, err error) error {
	return rental.WrapError(errorOperationMessage, errorSubjectMessage, code, err)
}

func mapMessageRows(rows []MessageRow) ([]Message, error) {
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		message, err := mapMessageRow(row)
		if err != nil {
			return nil, wrapMessageError(errorCodeList, err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func mapMessageRow(row MessageRow) (Message, error) {
	bookingID, err := rental.NewBookingID(row.BookingID)
	if err != nil {
		return Message{}, err
	}
	senderID, err := rental.NewUserID(row.SenderID)
	if err != nil {
		return Message{}, err
	}
	receiverID, err := rental.NewUserID(row.ReceiverID)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         row.MessageID,
		BookingID:  bookingID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    row.Content,
		Kind:       row.Kind,
		ReadAt:     row.ReadAt,
		CreatedAt:  row.CreatedAt,
	}, nil
}
