package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Category is the closed enum of event categories (spec §3).
type Category string

const (
	CategoryUniversity Category = "UNIVERSITY"
	CategoryConcert    Category = "CONCERT"
	CategoryClub       Category = "CLUB"
	CategorySocial     Category = "SOCIAL"
	CategoryHoliday    Category = "HOLIDAY"
)

// AllCategories lists the closed enum in a stable, presentation order.
func AllCategories() []Category {
	return []Category{CategoryUniversity, CategoryConcert, CategoryClub, CategorySocial, CategoryHoliday}
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryUniversity, CategoryConcert, CategoryClub, CategorySocial, CategoryHoliday:
		return true
	}
	return false
}

// Event is offered for booking only while Active && Start is in the future.
type Event struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description"`
	Venue       string    `json:"venue" gorm:"not null"`
	Start       time.Time `json:"start" gorm:"not null;index"`
	End         time.Time `json:"end" gorm:"not null"`
	Active      bool      `json:"active" gorm:"not null;default:true"`
	Category    Category  `json:"category" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Tiers []TicketTier `json:"tiers,omitempty" gorm:"foreignKey:EventID"`
}

// IsBookable reports whether the event is currently offered (spec §3 invariant).
func (e *Event) IsBookable(now time.Time) bool {
	return e.Active && e.Start.After(now)
}

// TicketTier is a priced class of tickets within one event.
type TicketTier struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	EventID      uuid.UUID `json:"event_id" gorm:"not null;index;type:uuid"`
	Name         string    `json:"name" gorm:"not null"`
	UnitPriceKES int64     `json:"unit_price_kes" gorm:"not null"` // fixed-point: whole KES, non-negative
	Quantity     int       `json:"quantity" gorm:"not null"`
	QuantitySold int       `json:"quantity_sold" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Event *Event `json:"event,omitempty" gorm:"foreignKey:EventID"`
}

// Available is the derived remaining capacity (spec §3).
func (t *TicketTier) Available() int {
	return t.Quantity - t.QuantitySold
}
