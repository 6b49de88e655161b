package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the indexes the Booking Engine's hot paths rely on
// that AutoMigrate's struct tags don't express.
func MigrateConstraints(db *gorm.DB) error {
	// The expiry sweeper's ListStalePending filters on (status, expiry_time);
	// a composite index keeps it cheap as the bookings table grows.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_status_expiry
		ON bookings (status, expiry_time);
	`).Error; err != nil {
		return err
	}

	// Inventory accounting never lets quantity_sold exceed quantity; this is
	// a last-resort guard behind the application-level availability check.
	if err := db.Exec(`
		ALTER TABLE ticket_tiers
		ADD CONSTRAINT IF NOT EXISTS quantity_sold_within_capacity
		CHECK (quantity_sold <= quantity);
	`).Error; err != nil {
		return err
	}

	return nil
}
