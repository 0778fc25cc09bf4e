package httpserver

import (
	"encoding/json"
	"time"

	"github.com/gearshare/gearshare/internal/catalog"
	"github.com/gearshare/gearshare/internal/message"
	"github.com/gearshare/gearshare/internal/notify"
	"github.com/gearshare/gearshare/pkg/rental"
)

type createRentalRequest struct {
	ItemID    string `json:"item_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type confirmRentalRequest struct {
	Confirm *bool `json:"confirm"`
}

type itemRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	DailyRateCents   int64           `json:"daily_rate_cents"`
	WeeklyRateCents  *int64          `json:"weekly_rate_cents"`
	MonthlyRateCents *int64          `json:"monthly_rate_cents"`
	Location         json.RawMessage `json:"location"`
	Parameters       json.RawMessage `json:"parameters"`
	Images           []string        `json:"images"`
}

type itemUpdateRequest struct {
	Title            *string         `json:"title"`
	Description      *string         `json:"description"`
	Category         *string         `json:"category"`
	Status           *string         `json:"status"`
	DailyRateCents   *int64          `json:"daily_rate_cents"`
	WeeklyRateCents  *int64          `json:"weekly_rate_cents"`
	MonthlyRateCents *int64          `json:"monthly_rate_cents"`
	Location         json.RawMessage `json:"location"`
	Parameters       json.RawMessage `json:"parameters"`
	Images           []string        `json:"images"`
}

type sendMessageRequest struct {
	BookingID  string `json:"booking_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Kind       string `json:"kind"`
}

type bookingPayload struct {
	ID              string    `json:"id"`
	ItemID          string    `json:"item_id"`
	RenterID        string    `json:"renter_id"`
	OwnerID         string    `json:"owner_id"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	TotalPriceCents int64     `json:"total_price_cents"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func bookingPayloadFrom(booking rental.Booking) bookingPayload {
	return bookingPayload{
		ID:              booking.ID.String(),
		ItemID:          booking.ItemID.String(),
		RenterID:        booking.RenterID.String(),
		OwnerID:         booking.OwnerID.String(),
		StartDate:       booking.StartDate.String(),
		EndDate:         booking.EndDate.String(),
		TotalPriceCents: booking.TotalPriceCents.Int64(),
		Status:          string(booking.Status),
		CreatedAt:       booking.CreatedAt,
		UpdatedAt:       booking.UpdatedAt,
	}
}

type itemPayload struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	Status           string          `json:"status"`
	DailyRateCents   int64           `json:"daily_rate_cents"`
	WeeklyRateCents  *int64          `json:"weekly_rate_cents,omitempty"`
	MonthlyRateCents *int64          `json:"monthly_rate_cents,omitempty"`
	Location         json.RawMessage `json:"location,omitempty"`
	Parameters       json.RawMessage `json:"parameters,omitempty"`
	Images           []string        `json:"images"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func itemPayloadFrom(record catalog.ItemRecord) itemPayload {
	images := record.Images
	if images == nil {
		images = []string{}
	}
	return itemPayload{
		ID:               record.ID.String(),
		OwnerID:          record.OwnerID.String(),
		Title:            record.Title,
		Description:      record.Description,
		Category:         record.Category,
		Status:           string(record.Status),
		DailyRateCents:   record.DailyRateCents.Int64(),
		WeeklyRateCents:  record.WeeklyRateCents,
		MonthlyRateCents: record.MonthlyRateCents,
		Location:         record.Location,
		Parameters:       record.Parameters,
		Images:           images,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

func itemPayloadsFrom(records []catalog.ItemRecord) []itemPayload {
	payloads := make([]itemPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, itemPayloadFrom(record))
	}
	return payloads
}

type notificationPayload struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func notificationPayloadFrom(notification notify.Notification) notificationPayload {
	return notificationPayload{
		ID:        notification.ID,
		Kind:      notification.Kind,
		Title:     notification.Title,
		Body:      notification.Body,
		ReadAt:    notification.ReadAt,
		CreatedAt: notification.CreatedAt,
	}
}

type messagePayload struct {
	ID         string     `json:"id"`
	BookingID  string     `json:"booking_id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Content    string     `json:"content"`
	Kind       string     `json:"kind"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func messagePayloadFrom(entry message.Message) messagePayload {
	return messagePayload{
		ID:         entry.ID,
		BookingID:  entry.BookingID.String(),
		SenderID:   entry.SenderID.String(),
		ReceiverID: entry.ReceiverID.String(),
		Content:    entry.Content,
		Kind:       entry.Kind,
		ReadAt:     entry.ReadAt,
		CreatedAt:  entry.CreatedAt,
	}
}

type conversationPayload struct {
	BookingID     string    `json:"booking_id"`
	OtherParty    string    `json:"other_party"`
	LastContent   string    `json:"last_content"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}

func conversationPayloadFrom(conversation message.Conversation) conversationPayload {
	return conversationPayload{
		BookingID:     conversation.BookingID.String(),
		OtherParty:    conversation.OtherParty.String(),
		LastContent:   conversation.LastContent,
		LastMessageAt: conversation.LastMessageAt,
		UnreadCount:   conversation.UnreadCount,
	}
}
