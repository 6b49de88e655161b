package database

import (
	"ticketconcierge/internal/booking"
	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/users"

	"gorm.io/gorm"
)

// Migrate runs auto-migration for every persisted model, in dependency order,
// then applies the concurrency-critical constraints auto-migration can't
// express.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		// Identity first
		&users.User{},

		// Catalog: events and their tiers
		&catalog.Event{},
		&catalog.TicketTier{},

		// Bookings and the tickets they produce
		&booking.Booking{},
		&booking.Ticket{},
	)
	if err != nil {
		return err
	}

	return MigrateConstraints(db)
}
