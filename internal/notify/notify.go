package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gearshare/gearshare/pkg/rental"
)

// ErrNotificationNotFound marks a lookup for a notification the user
// does not have.
var ErrNotificationNotFound = errors.New("notification not found")

const (
	errorOperationNotify     = "notify"
	errorSubjectNotification = "notification"
	errorCodeList            = "list"
	errorCodeMarkRead        = "mark_read"
	errorCodeCount           = "count"
)

// Notification is a persisted per-user message about marketplace
// activity.
type Notification struct {
	ID        string
	UserID    rental.UserID
	Kind      string
	Title     string
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Service persists notifications and implements rental.Notifier.
// Delivery is best effort: write failures are logged and swallowed so
// a notification outage never blocks a booking.
type Service struct {
	db     *gorm.DB
	nowFn  func() time.Time
	logger *zap.Logger
}

// New returns a Service backed by db.
func New(db *gorm.DB, now func() time.Time, logger *zap.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle must not be nil", rental.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock must not be nil", rental.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, nowFn: now, logger: logger}, nil
}

// Migrate creates or updates the notifications table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&NotificationRow{})
}

// Notify stores a notification for userID.
func (service *Service) Notify(ctx context.Context, userID rental.UserID, kind string, title string, body string) {
	row := NotificationRow{
		UserID:    userID.String(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: service.nowFn().UTC(),
	}
	if err := service.db.WithContext(ctx).Create(&row).Error; err != nil {
		service.logger.Warn("notification write failed",
			zap.String("user_id", userID.String()),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

// List returns the user's notifications newest first. With unreadOnly
// set, read notifications are skipped.
func (service *Service) List(ctx context.Context, userID rental.UserID, unreadOnly bool) ([]Notification, error) {
	query := service.db.WithContext(ctx).
		Where("user_id = ?", userID.String())
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []NotificationRow
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapNotifyError(errorCodeList, err)
	}
	notifications := make([]Notification, 0, len(rows))
	for _, row := range rows {
		notification, err := mapNotificationRow(row)
		if err != nil {
			return nil, wrapNotifyError(errorCodeList, err)
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}

// MarkRead stamps a single notification owned by userID.
func (service *Service) MarkRead(ctx context.Context, notificationID string, userID rental.UserID) error {
	now := service.nowFn().UTC()
	result := service.db.WithContext(ctx).
		Model(&NotificationRow{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID.String()).
		Update("read_at", &now)
	if result.Error != nil {
		return wrapNotifyError(errorCodeMarkRead, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead stamps every unread notification of userID.
func (service *Service) MarkAllRead(ctx context.Context, userID rental.UserID) error {
	now := service.nowFn().UTC()
	err := service.db.WithContext(ctx).
		Model(&NotificationRow{}).
		Where("user_id = ? AND read_at IS NULL", userID.String()).
		Update("read_at", &now).Error
	if err != nil {
		return wrapNotifyError(errorCodeMarkRead, err)
	}
	return nil
}

// UnreadCount returns the number of unread notifications for userID.
func (service *Service) UnreadCount(ctx context.Context, userID rental.UserID) (int64, error) {
	var count int64
	err := service.db.WithContext(ctx).
		Model(&NotificationRow{}).
		Where("user_id = ? AND read_at IS NULL", userID.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapNotifyError(errorCodeCount, err)
	}
	return count, nil
}

func wrapNotifyError(code string, err error) error {
	return rental.WrapError(errorOperationNotify, errorSubjectNotification, code, err)
}

func mapNotificationRow(row NotificationRow) (Notification, error) {
	userID, err := rental.NewUserID(row.UserID)
	if err != nil {
		return Notification{}, err
	}
	return Notification{
		ID:        row.NotificationID,
		UserID:    userID,
		Kind:      row.Kind,
		Title:     row.Title,
		Body:      row.Body,
		ReadAt:    row.ReadAt,
		CreatedAt: row.CreatedAt,
	}, nil
}
