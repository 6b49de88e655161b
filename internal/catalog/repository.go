package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the read-side store for events and tiers (spec §4.4).
type Repository interface {
	ListEventsByCategory(category Category, now time.Time) ([]Event, error)
	GetEventWithTiers(id uuid.UUID) (*Event, error)
	GetTierWithEvent(id uuid.UUID) (*TicketTier, error)
	ListEvents(category *Category, now time.Time) ([]Event, error)
	Create(event *Event) error
	CreateTier(tier *TicketTier) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// ListEventsByCategory returns active, future events in one category, ordered
// by start time ascending. Never returns nil even when empty (spec §4.4).
func (r *repository) ListEventsByCategory(category Category, now time.Time) ([]Event, error) {
	events := make([]Event, 0)
	err := r.db.
		Where("category = ? AND active = ? AND start > ?", category, true, now).
		Order("start ASC").
		Find(&events).Error
	return events, err
}

// ListEvents is the unrestricted browse used by the admin/catalog HTTP surface;
// category is an optional filter.
func (r *repository) ListEvents(category *Category, now time.Time) ([]Event, error) {
	events := make([]Event, 0)
	q := r.db.Where("active = ? AND start > ?", true, now)
	if category != nil {
		q = q.Where("category = ?", *category)
	}
	err := q.Order("start ASC").Find(&events).Error
	return events, err
}

// GetEventWithTiers fetches one event and its tiers ordered by price ascending.
func (r *repository) GetEventWithTiers(id uuid.UUID) (*Event, error) {
	var event Event
	if err := r.db.Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	tiers := make([]TicketTier, 0)
	if err := r.db.Where("event_id = ?", id).Order("unit_price_kes ASC").Find(&tiers).Error; err != nil {
		return nil, err
	}
	event.Tiers = tiers
	return &event, nil
}

// GetTierWithEvent fetches one tier along with its parent event.
func (r *repository) GetTierWithEvent(id uuid.UUID) (*TicketTier, error) {
	var tier TicketTier
	if err := r.db.Where("id = ?", id).First(&tier).Error; err != nil {
		return nil, err
	}
	var event Event
	if err := r.db.Where("id = ?", tier.EventID).First(&event).Error; err != nil {
		return nil, err
	}
	tier.Event = &event
	return &tier, nil
}

func (r *repository) Create(event *Event) error {
	return r.db.Create(event).Error
}

func (r *repository) CreateTier(tier *TicketTier) error {
	return r.db.Create(tier).Error
}
