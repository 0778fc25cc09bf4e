package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gearshare/gearshare/internal/catalog"
	"github.com/gearshare/gearshare/internal/message"
	"github.com/gearshare/gearshare/internal/notify"
	"github.com/gearshare/gearshare/internal/store/gormstore"
	"github.com/gearshare/gearshare/pkg/rental"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "gearshare-test"
)

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type serverFixture struct {
	router  *gin.Engine
	catalog *catalog.Catalog
}

func newServerFixture(test *testing.T) *serverFixture {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	for _, migrate := range []func(*gorm.DB) error{gormstore.Migrate, catalog.Migrate, notify.Migrate, message.Migrate} {
		if err := migrate(db); err != nil {
			test.Fatalf("migrate: %v", err)
		}
	}

	now := func() time.Time { return fixedNow }
	service, err := rental.NewService(gormstore.New(db), now)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	itemCatalog, err := catalog.New(db, now)
	if err != nil {
		test.Fatalf("new catalog: %v", err)
	}
	notifications, err := notify.New(db, now, zap.NewNop())
	if err != nil {
		test.Fatalf("new notify: %v", err)
	}
	workflow, err := rental.NewWorkflow(service, itemCatalog, notifications)
	if err != nil {
		test.Fatalf("new workflow: %v", err)
	}
	messages, err := message.New(db, service, notifications, now)
	if err != nil {
		test.Fatalf("new message: %v", err)
	}

	router, err := NewRouter(Config{
		AllowedOrigins:    []string{"http://localhost:3000"},
		SessionSigningKey: testSigningKey,
		SessionIssuer:     testIssuer,
	}, Dependencies{
		Logger:        zap.NewNop(),
		Rentals:       workflow,
		Availability:  service,
		Catalog:       itemCatalog,
		Notifications: notifications,
		Messages:      messages,
	})
	if err != nil {
		test.Fatalf("new router: %v", err)
	}
	return &serverFixture{router: router, catalog: itemCatalog}
}

func signToken(test *testing.T, subject string) string {
	test.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	if err != nil {
		test.Fatalf("sign token: %v", err)
	}
	return signed
}

func (fx *serverFixture) request(test *testing.T, method string, path string, actor string, body any) *httptest.ResponseRecorder {
	test.Helper()
	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("encode body: %v", err)
		}
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	request := httptest.NewRequest(method, path, payload)
	request.Header.Set("Content-Type", "application/json")
	if actor != "" {
		request.Header.Set("Authorization", "Bearer "+signToken(test, actor))
	}
	recorder := httptest.NewRecorder()
	fx.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](test *testing.T, recorder *httptest.ResponseRecorder) T {
	test.Helper()
	var decoded T
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		test.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func (fx *serverFixture) seedActiveItem(test *testing.T, owner string, rateCents int64) string {
	test.Helper()
	record, err := fx.catalog.Create(context.Background(), mustUserID(test, owner), catalog.NewItem{
		Title:          "Cargo bike",
		Description:    "Long-tail cargo bike with child seat",
		Category:       "bikes",
		DailyRateCents: rateCents,
	})
	if err != nil {
		test.Fatalf("seed item: %v", err)
	}
	active := rental.ItemStatusActive
	record, err = fx.catalog.Update(context.Background(), record.ID, record.OwnerID, catalog.ItemUpdate{Status: &active})
	if err != nil {
		test.Fatalf("activate item: %v", err)
	}
	return record.ID.String()
}

func mustUserID(test *testing.T, raw string) rental.UserID {
	test.Helper()
	userID, err := rental.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func TestHealthzOpen(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	recorder := fx.request(test, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestAPIRequiresBearerToken(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)

	recorder := fx.request(test, http.MethodGet, "/api/rentals", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/rentals", nil)
	request.Header.Set("Authorization", "Bearer not-a-token")
	recorder = httptest.NewRecorder()
	fx.router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401 for garbage token, got %d", recorder.Code)
	}
}

func TestRentalLifecycleOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	itemID := fx.seedActiveItem(test, "owner-1", 10000)

	recorder := fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	if recorder.Code != http.StatusCreated {
		test.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	created := decodeBody[bookingPayload](test, recorder)
	if created.Status != "pending" || created.TotalPriceCents != 30000 {
		test.Fatalf("unexpected booking: %+v", created)
	}

	recorder = fx.request(test, http.MethodPut, "/api/rentals/"+created.ID+"/confirm", "owner-1", gin.H{"confirm": true})
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 on confirm, got %d: %s", recorder.Code, recorder.Body.String())
	}
	confirmed := decodeBody[bookingPayload](test, recorder)
	if confirmed.Status != "confirmed" {
		test.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	recorder = fx.request(test, http.MethodGet, fmt.Sprintf("/api/items/%s/availability?start_date=2026-03-12&end_date=2026-03-12", itemID), "renter-2", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 on availability, got %d", recorder.Code)
	}
	availability := decodeBody[map[string]bool](test, recorder)
	if availability["available"] {
		test.Fatalf("expected confirmed dates unavailable")
	}

	recorder = fx.request(test, http.MethodPost, "/api/rentals", "renter-2", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-12",
		"end_date":   "2026-03-12",
	})
	if recorder.Code != http.StatusConflict {
		test.Fatalf("expected 409 for overlapping request, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = fx.request(test, http.MethodPut, "/api/rentals/"+created.ID+"/complete", "renter-1", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 on complete, got %d: %s", recorder.Code, recorder.Body.String())
	}
	completed := decodeBody[bookingPayload](test, recorder)
	if completed.Status != "completed" {
		test.Fatalf("expected completed, got %s", completed.Status)
	}
}

func TestRentalPermissionsOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	itemID := fx.seedActiveItem(test, "owner-1", 10000)

	recorder := fx.request(test, http.MethodPost, "/api/rentals", "owner-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for self-rental, got %d", recorder.Code)
	}

	recorder = fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-01",
		"end_date":   "2026-03-13",
	})
	if recorder.Code != http.StatusBadRequest {
		test.Fatalf("expected 400 for past start, got %d", recorder.Code)
	}

	recorder = fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	created := decodeBody[bookingPayload](test, recorder)

	recorder = fx.request(test, http.MethodPut, "/api/rentals/"+created.ID+"/confirm", "stranger", gin.H{"confirm": true})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for stranger confirm, got %d", recorder.Code)
	}
	recorder = fx.request(test, http.MethodGet, "/api/rentals/"+created.ID, "stranger", nil)
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for stranger read, got %d", recorder.Code)
	}
	recorder = fx.request(test, http.MethodGet, "/api/rentals/unknown-booking", "renter-1", nil)
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("expected 404 for unknown booking, got %d", recorder.Code)
	}
}

func TestRejectReleasesDatesOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	itemID := fx.seedActiveItem(test, "owner-1", 5000)

	recorder := fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-12",
	})
	created := decodeBody[bookingPayload](test, recorder)

	recorder = fx.request(test, http.MethodPut, "/api/rentals/"+created.ID+"/confirm", "owner-1", gin.H{"confirm": false})
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 on reject, got %d: %s", recorder.Code, recorder.Body.String())
	}
	rejected := decodeBody[bookingPayload](test, recorder)
	if rejected.Status != "cancelled" {
		test.Fatalf("expected cancelled, got %s", rejected.Status)
	}

	recorder = fx.request(test, http.MethodGet, fmt.Sprintf("/api/items/%s/availability?start_date=2026-03-11&end_date=2026-03-12", itemID), "renter-2", nil)
	availability := decodeBody[map[string]bool](test, recorder)
	if !availability["available"] {
		test.Fatalf("expected rejected dates to stay available")
	}

	recorder = fx.request(test, http.MethodPut, "/api/rentals/"+created.ID+"/confirm", "owner-1", gin.H{"confirm": true})
	if recorder.Code != http.StatusConflict {
		test.Fatalf("expected 409 for deciding a settled booking, got %d", recorder.Code)
	}
}

func TestRoleFilteredListingOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	itemID := fx.seedActiveItem(test, "owner-1", 10000)

	recorder := fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	if recorder.Code != http.StatusCreated {
		test.Fatalf("seed booking failed: %d", recorder.Code)
	}

	recorder = fx.request(test, http.MethodGet, "/api/rentals?role=renter", "renter-1", nil)
	listed := decodeBody[[]bookingPayload](test, recorder)
	if len(listed) != 1 {
		test.Fatalf("expected 1 booking as renter, got %d", len(listed))
	}
	recorder = fx.request(test, http.MethodGet, "/api/rentals?role=owner", "owner-1", nil)
	listed = decodeBody[[]bookingPayload](test, recorder)
	if len(listed) != 1 {
		test.Fatalf("expected 1 booking as owner, got %d", len(listed))
	}
	recorder = fx.request(test, http.MethodGet, "/api/rentals?role=owner", "renter-1", nil)
	listed = decodeBody[[]bookingPayload](test, recorder)
	if len(listed) != 0 {
		test.Fatalf("expected no owned bookings for the renter, got %d", len(listed))
	}
	recorder = fx.request(test, http.MethodGet, "/api/rentals?role=landlord", "renter-1", nil)
	if recorder.Code != http.StatusBadRequest {
		test.Fatalf("expected 400 for unknown role, got %d", recorder.Code)
	}
}

func TestItemRoutesOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)

	recorder := fx.request(test, http.MethodPost, "/api/items", "owner-1", gin.H{
		"title":            "Pressure washer",
		"description":      "2000 PSI electric pressure washer",
		"category":         "tools",
		"daily_rate_cents": 2200,
		"location":         gin.H{"address": "Oak Street 12"},
	})
	if recorder.Code != http.StatusCreated {
		test.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	created := decodeBody[itemPayload](test, recorder)
	if created.Status != "draft" {
		test.Fatalf("expected draft listing, got %s", created.Status)
	}

	// Draft listings stay out of the public search.
	recorder = fx.request(test, http.MethodGet, "/api/items?category=tools", "renter-1", nil)
	results := decodeBody[[]itemPayload](test, recorder)
	if len(results) != 0 {
		test.Fatalf("expected empty search, got %d", len(results))
	}

	recorder = fx.request(test, http.MethodPut, "/api/items/"+created.ID, "renter-1", gin.H{"status": "active"})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for non-owner update, got %d", recorder.Code)
	}
	recorder = fx.request(test, http.MethodPut, "/api/items/"+created.ID, "owner-1", gin.H{"status": "active"})
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = fx.request(test, http.MethodGet, "/api/items?query=washer", "renter-1", nil)
	results = decodeBody[[]itemPayload](test, recorder)
	if len(results) != 1 || results[0].ID != created.ID {
		test.Fatalf("expected the active listing in search, got %+v", results)
	}

	recorder = fx.request(test, http.MethodGet, "/api/items/my", "owner-1", nil)
	results = decodeBody[[]itemPayload](test, recorder)
	if len(results) != 1 {
		test.Fatalf("expected 1 owned item, got %d", len(results))
	}

	recorder = fx.request(test, http.MethodDelete, "/api/items/"+created.ID, "owner-1", nil)
	if recorder.Code != http.StatusNoContent {
		test.Fatalf("expected 204, got %d", recorder.Code)
	}
	recorder = fx.request(test, http.MethodGet, "/api/items/"+created.ID, "owner-1", nil)
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("expected 404 after delete, got %d", recorder.Code)
	}
}

func TestNotificationRoutesOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	itemID := fx.seedActiveItem(test, "owner-1", 10000)

	recorder := fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	if recorder.Code != http.StatusCreated {
		test.Fatalf("seed booking failed: %d", recorder.Code)
	}

	// The owner notification is written by a fire-and-forget goroutine.
	deadline := time.Now().Add(2 * time.Second)
	var notifications []notificationPayload
	for {
		recorder = fx.request(test, http.MethodGet, "/api/notifications", "owner-1", nil)
		notifications = decodeBody[[]notificationPayload](test, recorder)
		if len(notifications) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(notifications) != 1 || notifications[0].Kind != "new_rental_request" {
		test.Fatalf("expected a rental request notification, got %+v", notifications)
	}

	recorder = fx.request(test, http.MethodGet, "/api/notifications/unread-count", "owner-1", nil)
	count := decodeBody[map[string]int](test, recorder)
	if count["unread_count"] != 1 {
		test.Fatalf("expected 1 unread, got %d", count["unread_count"])
	}

	recorder = fx.request(test, http.MethodPut, "/api/notifications/"+notifications[0].ID+"/read", "renter-1", nil)
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("expected 404 for foreign notification, got %d", recorder.Code)
	}
	recorder = fx.request(test, http.MethodPut, "/api/notifications/"+notifications[0].ID+"/read", "owner-1", nil)
	if recorder.Code != http.StatusNoContent {
		test.Fatalf("expected 204, got %d", recorder.Code)
	}
	recorder = fx.request(test, http.MethodGet, "/api/notifications?unread_only=true", "owner-1", nil)
	notifications = decodeBody[[]notificationPayload](test, recorder)
	if len(notifications) != 0 {
		test.Fatalf("expected no unread notifications, got %d", len(notifications))
	}
}

func TestMessageRoutesOverHTTP(test *testing.T) {
	test.Parallel()
	fx := newServerFixture(test)
	itemID := fx.seedActiveItem(test, "owner-1", 10000)

	recorder := fx.request(test, http.MethodPost, "/api/rentals", "renter-1", gin.H{
		"item_id":    itemID,
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	booking := decodeBody[bookingPayload](test, recorder)

	recorder = fx.request(test, http.MethodPost, "/api/messages", "renter-1", gin.H{
		"booking_id":  booking.ID,
		"receiver_id": "owner-1",
		"content":     "Can I pick it up at nine?",
	})
	if recorder.Code != http.StatusCreated {
		test.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	sent := decodeBody[messagePayload](test, recorder)

	recorder = fx.request(test, http.MethodPost, "/api/messages", "stranger", gin.H{
		"booking_id":  booking.ID,
		"receiver_id": "owner-1",
		"content":     "let me in",
	})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for outsider, got %d", recorder.Code)
	}

	recorder = fx.request(test, http.MethodGet, "/api/messages/booking/"+booking.ID, "owner-1", nil)
	thread := decodeBody[[]messagePayload](test, recorder)
	if len(thread) != 1 || thread[0].Content != "Can I pick it up at nine?" {
		test.Fatalf("unexpected thread: %+v", thread)
	}

	recorder = fx.request(test, http.MethodGet, "/api/messages/conversations", "owner-1", nil)
	conversations := decodeBody[[]conversationPayload](test, recorder)
	if len(conversations) != 1 || conversations[0].UnreadCount != 1 {
		test.Fatalf("unexpected conversations: %+v", conversations)
	}

	recorder = fx.request(test, http.MethodPut, "/api/messages/"+sent.ID+"/read", "owner-1", nil)
	if recorder.Code != http.StatusNoContent {
		test.Fatalf("expected 204, got %d", recorder.Code)
	}
}
