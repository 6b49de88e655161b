package catalog

import (
	"time"

	"github.com/google/uuid"

	"ticketconcierge/internal/bookingerr"
)

// Service is the Catalog Query component (spec §4.4): read-only, the four
// catalog operations plus ListEvents for the HTTP browse surface, never
// returning nil slices on success.
type Service interface {
	ListCategories() []Category
	ListEventsByCategory(category Category) ([]Event, error)
	GetEvent(id uuid.UUID) (*Event, error)
	GetTier(id uuid.UUID) (*TicketTier, error)
	ListEvents(category *Category) ([]Event, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) ListCategories() []Category {
	return AllCategories()
}

func (s *service) ListEventsByCategory(category Category) ([]Event, error) {
	if !category.IsValid() {
		return nil, bookingerr.New(bookingerr.InvalidInput, "unknown category: "+string(category))
	}
	return s.repo.ListEventsByCategory(category, s.now())
}

func (s *service) ListEvents(category *Category) ([]Event, error) {
	if category != nil && !category.IsValid() {
		return nil, bookingerr.New(bookingerr.InvalidInput, "unknown category: "+string(*category))
	}
	return s.repo.ListEvents(category, s.now())
}

func (s *service) GetEvent(id uuid.UUID) (*Event, error) {
	event, err := s.repo.GetEventWithTiers(id)
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.NotFound, err)
	}
	return event, nil
}

func (s *service) GetTier(id uuid.UUID) (*TicketTier, error) {
	tier, err := s.repo.GetTierWithEvent(id)
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.NotFound, err)
	}
	return tier, nil
}
