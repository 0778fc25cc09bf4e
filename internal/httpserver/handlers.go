package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gearshare/gearshare/internal/catalog"
	"github.com/gearshare/gearshare/internal/message"
	"github.com/gearshare/gearshare/internal/notify"
	"github.com/gearshare/gearshare/pkg/rental"
)

type httpHandler struct {
	logger        *zap.Logger
	rentals       *rental.Workflow
	availability  *rental.Service
	catalog       *catalog.Catalog
	notifications *notify.Service
	messages      *message.Service
}

func (handler *httpHandler) handleCreateRental(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request createRentalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	itemID, err := rental.NewItemID(request.ItemID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("item_not_found", "item not found"))
		return
	}
	start, err := rental.ParseDate(request.StartDate)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", err.Error()))
		return
	}
	end, err := rental.ParseDate(request.EndDate)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", err.Error()))
		return
	}
	booking, err := handler.rentals.RequestBooking(ctx.Request.Context(), actor, itemID, start, end)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, bookingPayloadFrom(booking))
}

func (handler *httpHandler) handleListRentals(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	role, err := rental.ParseRole(ctx.Query("role"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_role", err.Error()))
		return
	}
	bookings, err := handler.rentals.ListBookings(ctx.Request.Context(), actor, role)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]bookingPayload, 0, len(bookings))
	for _, booking := range bookings {
		payloads = append(payloads, bookingPayloadFrom(booking))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleGetRental(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	bookingID, err := rental.NewBookingID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("booking_not_found", "booking not found"))
		return
	}
	booking, err := handler.rentals.GetBooking(ctx.Request.Context(), actor, bookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, bookingPayloadFrom(booking))
}

func (handler *httpHandler) handleConfirmRental(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	bookingID, err := rental.NewBookingID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("booking_not_found", "booking not found"))
		return
	}
	var request confirmRentalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.Confirm == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected {\"confirm\": bool}"))
		return
	}
	booking, err := handler.rentals.DecideBooking(ctx.Request.Context(), actor, bookingID, *request.Confirm)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, bookingPayloadFrom(booking))
}

func (handler *httpHandler) handleCompleteRental(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	bookingID, err := rental.NewBookingID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("booking_not_found", "booking not found"))
		return
	}
	booking, err := handler.rentals.CompleteBooking(ctx.Request.Context(), actor, bookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, bookingPayloadFrom(booking))
}

func (handler *httpHandler) handleCreateItem(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request itemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	record, err := handler.catalog.Create(ctx.Request.Context(), actor, catalog.NewItem{
		Title:            request.Title,
		Description:      request.Description,
		Category:         request.Category,
		DailyRateCents:   request.DailyRateCents,
		WeeklyRateCents:  request.WeeklyRateCents,
		MonthlyRateCents: request.MonthlyRateCents,
		Location:         request.Location,
		Parameters:       request.Parameters,
		Images:           request.Images,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, itemPayloadFrom(record))
}

func (handler *httpHandler) handleSearchItems(ctx *gin.Context) {
	filter := catalog.SearchFilter{
		Query:     ctx.Query("query"),
		Category:  ctx.Query("category"),
		SortBy:    ctx.Query("sort_by"),
		SortOrder: ctx.Query("sort_order"),
	}
	if raw := ctx.Query("min_price_cents"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_filter", "min_price_cents must be an integer"))
			return
		}
		filter.MinDailyRateCents = &value
	}
	if raw := ctx.Query("max_price_cents"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_filter", "max_price_cents must be an integer"))
			return
		}
		filter.MaxDailyRateCents = &value
	}
	filter.Page, _ = strconv.Atoi(ctx.Query("page"))
	filter.Limit, _ = strconv.Atoi(ctx.Query("limit"))

	records, err := handler.catalog.Search(ctx.Request.Context(), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, itemPayloadsFrom(records))
}

func (handler *httpHandler) handleMyItems(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	records, err := handler.catalog.ListForOwner(ctx.Request.Context(), actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, itemPayloadsFrom(records))
}

func (handler *httpHandler) handleGetItem(ctx *gin.Context) {
	itemID, err := rental.NewItemID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("item_not_found", "item not found"))
		return
	}
	record, err := handler.catalog.Get(ctx.Request.Context(), itemID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, itemPayloadFrom(record))
}

func (handler *httpHandler) handleItemAvailability(ctx *gin.Context) {
	itemID, err := rental.NewItemID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("item_not_found", "item not found"))
		return
	}
	start, err := rental.ParseDate(ctx.Query("start_date"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", err.Error()))
		return
	}
	end, err := rental.ParseDate(ctx.Query("end_date"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", err.Error()))
		return
	}
	available, err := handler.availability.CheckAvailability(ctx.Request.Context(), itemID, start, end)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"available": available})
}

func (handler *httpHandler) handleUpdateItem(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	itemID, err := rental.NewItemID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("item_not_found", "item not found"))
		return
	}
	var request itemUpdateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	update := catalog.ItemUpdate{
		Title:            request.Title,
		Description:      request.Description,
		Category:         request.Category,
		DailyRateCents:   request.DailyRateCents,
		WeeklyRateCents:  request.WeeklyRateCents,
		MonthlyRateCents: request.MonthlyRateCents,
		Location:         request.Location,
		Parameters:       request.Parameters,
		Images:           request.Images,
	}
	if request.Status != nil {
		status := rental.ItemStatus(*request.Status)
		update.Status = &status
	}
	record, err := handler.catalog.Update(ctx.Request.Context(), itemID, actor, update)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, itemPayloadFrom(record))
}

func (handler *httpHandler) handleDeleteItem(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	itemID, err := rental.NewItemID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("item_not_found", "item not found"))
		return
	}
	if err := handler.catalog.Delete(ctx.Request.Context(), itemID, actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleListNotifications(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	unreadOnly := ctx.Query("unread_only") == "true"
	notifications, err := handler.notifications.List(ctx.Request.Context(), actor, unreadOnly)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]notificationPayload, 0, len(notifications))
	for _, notification := range notifications {
		payloads = append(payloads, notificationPayloadFrom(notification))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleUnreadCount(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	count, err := handler.notifications.UnreadCount(ctx.Request.Context(), actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (handler *httpHandler) handleMarkNotificationRead(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if err := handler.notifications.MarkRead(ctx.Request.Context(), ctx.Param("id"), actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleMarkAllNotificationsRead(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if err := handler.notifications.MarkAllRead(ctx.Request.Context(), actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleSendMessage(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request sendMessageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	bookingID, err := rental.NewBookingID(request.BookingID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("booking_not_found", "booking not found"))
		return
	}
	receiverID, err := rental.NewUserID(request.ReceiverID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_receiver", "receiver_id must not be empty"))
		return
	}
	sent, err := handler.messages.Send(ctx.Request.Context(), bookingID, actor, receiverID, request.Content, request.Kind)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, messagePayloadFrom(sent))
}

func (handler *httpHandler) handleBookingThread(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	bookingID, err := rental.NewBookingID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("booking_not_found", "booking not found"))
		return
	}
	thread, err := handler.messages.ListThread(ctx.Request.Context(), bookingID, actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]messagePayload, 0, len(thread))
	for _, entry := range thread {
		payloads = append(payloads, messagePayloadFrom(entry))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleConversations(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	conversations, err := handler.messages.ListConversations(ctx.Request.Context(), actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]conversationPayload, 0, len(conversations))
	for _, conversation := range conversations {
		payloads = append(payloads, conversationPayloadFrom(conversation))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleMarkMessageRead(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if err := handler.messages.MarkRead(ctx.Request.Context(), ctx.Param("id"), actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(status, errorResponse("internal_error", "unexpected failure"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

// statusForError maps domain sentinels to transport statuses. Missing
// and malformed identifiers both surface as not found.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, rental.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, rental.ErrBookingNotFound):
		return http.StatusNotFound, "booking_not_found"
	case errors.Is(err, notify.ErrNotificationNotFound):
		return http.StatusNotFound, "notification_not_found"
	case errors.Is(err, message.ErrMessageNotFound):
		return http.StatusNotFound, "message_not_found"
	case errors.Is(err, rental.ErrForbidden), errors.Is(err, rental.ErrSelfRental):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, rental.ErrDatesUnavailable):
		return http.StatusConflict, "dates_unavailable"
	case errors.Is(err, rental.ErrItemNotActive),
		errors.Is(err, rental.ErrBookingNotPending),
		errors.Is(err, rental.ErrBookingNotCompletable),
		errors.Is(err, rental.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, rental.ErrInvalidDateRange),
		errors.Is(err, rental.ErrStartDateInPast),
		errors.Is(err, rental.ErrInvalidDate),
		errors.Is(err, rental.ErrInvalidPriceCents),
		errors.Is(err, rental.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, catalog.ErrInvalidItemTitle),
		errors.Is(err, catalog.ErrInvalidItemDescription),
		errors.Is(err, catalog.ErrInvalidItemCategory),
		errors.Is(err, catalog.ErrInvalidItemRate),
		errors.Is(err, catalog.ErrInvalidItemStatus),
		errors.Is(err, catalog.ErrNothingToUpdate):
		return http.StatusBadRequest, "invalid_item"
	case errors.Is(err, message.ErrEmptyMessage),
		errors.Is(err, message.ErrInvalidReceiver),
		errors.Is(err, message.ErrSelfMessage),
		errors.Is(err, message.ErrUnknownKind):
		return http.StatusBadRequest, "invalid_message"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorResponse(code string, messageText string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": messageText,
		},
	}
}
