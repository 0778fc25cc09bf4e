package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gearshare/gearshare/pkg/rental"
)

// Validation errors for listing input.
var (
	ErrInvalidItemTitle       = errors.New("item title must not be empty")
	ErrInvalidItemDescription = errors.New("item description must not be empty")
	ErrInvalidItemCategory    = errors.New("item category must not be empty")
	ErrInvalidItemRate        = errors.New("item daily rate must be positive")
	ErrInvalidItemStatus      = errors.New("unknown item status")
	ErrNothingToUpdate        = errors.New("no item fields to update")
)

const (
	errorOperationCatalog = "catalog"
	errorSubjectItem      = "item"
	errorCodeCreate       = "create"
	errorCodeGet          = "get"
	errorCodeUpdate       = "update"
	errorCodeDelete       = "delete"
	errorCodeList         = "list"
	errorCodeInvalid      = "invalid"

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// ItemRecord is the full catalog view of a listing. rental.Item is the
// narrower slice handed to the booking workflow.
type ItemRecord struct {
	ID               rental.ItemID
	OwnerID          rental.UserID
	Title            string
	Description      string
	Category         string
	Status           rental.ItemStatus
	DailyRateCents   rental.PriceCents
	WeeklyRateCents  *int64
	MonthlyRateCents *int64
	Location         json.RawMessage
	Parameters       json.RawMessage
	Images           []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewItem is the owner-supplied input for a listing. New listings
// always start in the draft status.
type NewItem struct {
	Title            string
	Description      string
	Category         string
	DailyRateCents   int64
	WeeklyRateCents  *int64
	MonthlyRateCents *int64
	Location         json.RawMessage
	Parameters       json.RawMessage
	Images           []string
}

// ItemUpdate carries the fields an owner may change. Nil pointers leave
// the stored value untouched.
type ItemUpdate struct {
	Title            *string
	Description      *string
	Category         *string
	Status           *rental.ItemStatus
	DailyRateCents   *int64
	WeeklyRateCents  *int64
	MonthlyRateCents *int64
	Location         json.RawMessage
	Parameters       json.RawMessage
	Images           []string
}

// SearchFilter narrows and pages the public listing search. Only
// active listings are ever returned.
type SearchFilter struct {
	Query             string
	Category          string
	MinDailyRateCents *int64
	MaxDailyRateCents *int64
	Page              int
	Limit             int
	SortBy            string
	SortOrder         string
}

// Catalog stores and resolves listings. It implements
// rental.ItemCatalog for the booking workflow.
type Catalog struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// New returns a Catalog backed by db with time injected via now.
func New(db *gorm.DB, now func() time.Time) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle must not be nil", rental.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock must not be nil", rental.ErrInvalidServiceConfig)
	}
	return &Catalog{db: db, nowFn: now}, nil
}

// Migrate creates or updates the items table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ItemRow{})
}

// GetItem resolves the booking-facing slice of a listing.
func (catalog *Catalog) GetItem(ctx context.Context, itemID rental.ItemID) (rental.Item, error) {
	record, err := catalog.Get(ctx, itemID)
	if err != nil {
		return rental.Item{}, err
	}
	return rental.Item{
		ID:             record.ID,
		OwnerID:        record.OwnerID,
		Title:          record.Title,
		Status:         record.Status,
		DailyRateCents: record.DailyRateCents,
	}, nil
}

// Get returns the full listing record.
func (catalog *Catalog) Get(ctx context.Context, itemID rental.ItemID) (ItemRecord, error) {
	var row ItemRow
	err := catalog.db.WithContext(ctx).Where("item_id = ?", itemID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ItemRecord{}, rental.ErrItemNotFound
	}
	if err != nil {
		return ItemRecord{}, wrapCatalogError(errorCodeGet, err)
	}
	return mapItemRow(row)
}

// Create stores a new draft listing owned by ownerID.
func (catalog *Catalog) Create(ctx context.Context, ownerID rental.UserID, input NewItem) (ItemRecord, error) {
	if err := validateNewItem(input); err != nil {
		return ItemRecord{}, err
	}
	now := catalog.nowFn().UTC()
	row := ItemRow{
		OwnerID:          ownerID.String(),
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		Category:         strings.TrimSpace(input.Category),
		Status:           string(rental.ItemStatusDraft),
		DailyRateCents:   input.DailyRateCents,
		WeeklyRateCents:  input.WeeklyRateCents,
		MonthlyRateCents: input.MonthlyRateCents,
		Location:         datatypes.JSON(input.Location),
		Parameters:       datatypes.JSON(input.Parameters),
		Images:           marshalImages(input.Images),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := catalog.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ItemRecord{}, wrapCatalogError(errorCodeCreate, err)
	}
	return mapItemRow(row)
}

// Update applies the non-nil fields of update to a listing the actor
// owns.
func (catalog *Catalog) Update(ctx context.Context, itemID rental.ItemID, actorID rental.UserID, update ItemUpdate) (ItemRecord, error) {
	changes, err := buildChanges(update)
	if err != nil {
		return ItemRecord{}, err
	}
	record, err := catalog.Get(ctx, itemID)
	if err != nil {
		return ItemRecord{}, err
	}
	if record.OwnerID != actorID {
		return ItemRecord{}, rental.ErrForbidden
	}
	changes["updated_at"] = catalog.nowFn().UTC()
	err = catalog.db.WithContext(ctx).
		Model(&ItemRow{}).
		Where("item_id = ? AND owner_id = ?", itemID.String(), actorID.String()).
		Updates(changes).Error
	if err != nil {
		return ItemRecord{}, wrapCatalogError(errorCodeUpdate, err)
	}
	return catalog.Get(ctx, itemID)
}

// Delete removes a listing the actor owns.
func (catalog *Catalog) Delete(ctx context.Context, itemID rental.ItemID, actorID rental.UserID) error {
	record, err := catalog.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if record.OwnerID != actorID {
		return rental.ErrForbidden
	}
	err = catalog.db.WithContext(ctx).
		Where("item_id = ?", itemID.String()).
		Delete(&ItemRow{}).Error
	if err != nil {
		return wrapCatalogError(errorCodeDelete, err)
	}
	return nil
}

// Search lists active listings matching the filter.
func (catalog *Catalog) Search(ctx context.Context, filter SearchFilter) ([]ItemRecord, error) {
	query := catalog.db.WithContext(ctx).
		Model(&ItemRow{}).
		Where("status = ?", string(rental.ItemStatusActive))
	if trimmed := strings.TrimSpace(filter.Query); trimmed != "" {
		pattern := "%" + strings.ToLower(trimmed) + "%"
		query = query.Where("lower(title) LIKE ? OR lower(description) LIKE ?", pattern, pattern)
	}
	if trimmed := strings.TrimSpace(filter.Category); trimmed != "" {
		query = query.Where("category = ?", trimmed)
	}
	if filter.MinDailyRateCents != nil {
		query = query.Where("daily_rate_cents >= ?", *filter.MinDailyRateCents)
	}
	if filter.MaxDailyRateCents != nil {
		query = query.Where("daily_rate_cents <= ?", *filter.MaxDailyRateCents)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var rows []ItemRow
	err := query.Order(sortClause(filter.SortBy, filter.SortOrder)).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapCatalogError(errorCodeList, err)
	}
	return mapItemRows(rows)
}

// ListForOwner returns every listing owned by ownerID, any status,
// newest first.
func (catalog *Catalog) ListForOwner(ctx context.Context, ownerID rental.UserID) ([]ItemRecord, error) {
	var rows []ItemRow
	err := catalog.db.WithContext(ctx).
		Where("owner_id = ?", ownerID.String()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapCatalogError(errorCodeList, err)
	}
	return mapItemRows(rows)
}

func validateNewItem(input NewItem) error {
	if strings.TrimSpace(input.Title) == "" {
		return ErrInvalidItemTitle
	}
	if strings.TrimSpace(input.Description) == "" {
		return ErrInvalidItemDescription
	}
	if strings.TrimSpace(input.Category) == "" {
		return ErrInvalidItemCategory
	}
	if input.DailyRateCents <= 0 {
		return ErrInvalidItemRate
	}
	return nil
}

func buildChanges(update ItemUpdate) (map[string]any, error) {
	changes := map[string]any{}
	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			return nil, ErrInvalidItemTitle
		}
		changes["title"] = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		if strings.TrimSpace(*update.Description) == "" {
			return nil, ErrInvalidItemDescription
		}
		changes["description"] = strings.TrimSpace(*update.Description)
	}
	if update.Category != nil {
		if strings.TrimSpace(*update.Category) == "" {
			return nil, ErrInvalidItemCategory
		}
		changes["category"] = strings.TrimSpace(*update.Category)
	}
	if update.Status != nil {
		if !knownItemStatus(*update.Status) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidItemStatus, *update.Status)
		}
		changes["status"] = string(*update.Status)
	}
	if update.DailyRateCents != nil {
		if *update.DailyRateCents <= 0 {
			return nil, ErrInvalidItemRate
		}
		changes["daily_rate_cents"] = *update.DailyRateCents
	}
	if update.WeeklyRateCents != nil {
		changes["weekly_rate_cents"] = *update.WeeklyRateCents
	}
	if update.MonthlyRateCents != nil {
		changes["monthly_rate_cents"] = *update.MonthlyRateCents
	}
	if update.Location != nil {
		changes["location"] = datatypes.JSON(update.Location)
	}
	if update.Parameters != nil {
		changes["parameters"] = datatypes.JSON(update.Parameters)
	}
	if update.Images != nil {
		changes["images"] = marshalImages(update.Images)
	}
	if len(changes) == 0 {
		return nil, ErrNothingToUpdate
	}
	return changes, nil
}

func knownItemStatus(status rental.ItemStatus) bool {
	switch status {
	case rental.ItemStatusDraft, rental.ItemStatusActive, rental.ItemStatusInactive, rental.ItemStatusArchived:
		return true
	default:
		return false
	}
}

func sortClause(sortBy string, sortOrder string) string {
	column := "created_at"
	if sortBy == "price" || sortBy == "daily_rate_cents" {
		column = "daily_rate_cents"
	}
	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}
	return column + " " + direction
}

func marshalImages(images []string) datatypes.JSON {
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(encoded)
}

func unmarshalImages(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var images []string
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil
	}
	return images
}

func wrapCatalogError(code string, err error) error {
	return rental.WrapError(errorOperationCatalog, errorSubjectItem, code, err)
}

func mapItemRows(rows []ItemRow) ([]ItemRecord, error) {
	records := make([]ItemRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapItemRow(row)
		if err != nil {
			return nil, wrapCatalogError(errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func mapItemRow(row ItemRow) (ItemRecord, error) {
	itemID, err := rental.NewItemID(row.ItemID)
	if err != nil {
		return ItemRecord{}, err
	}
	ownerID, err := rental.NewUserID(row.OwnerID)
	if err != nil {
		return ItemRecord{}, err
	}
	dailyRate, err := rental.NewPriceCents(row.DailyRateCents)
	if err != nil {
		return ItemRecord{}, err
	}
	status := rental.ItemStatus(row.Status)
	if !knownItemStatus(status) {
		return ItemRecord{}, fmt.Errorf("%w: %q", ErrInvalidItemStatus, row.Status)
	}
	return ItemRecord{
		ID:               itemID,
		OwnerID:          ownerID,
		Title:            row.Title,
		Description:      row.Description,
		Category:         row.Category,
		Status:           status,
		DailyRateCents:   dailyRate,
		WeeklyRateCents:  row.WeeklyRateCents,
		MonthlyRateCents: row.MonthlyRateCents,
		Location:         json.RawMessage(row.Location),
		Parameters:       json.RawMessage(row.Parameters),
		Images:           unmarshalImages(row.Images),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}
