package main

import (
	"fmt"
	"log"
	"time"

	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/shared/config"
	"ticketconcierge/internal/shared/database"

	"github.com/google/uuid"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Ticket Concierge Database Seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates the catalog tables in dependency order.
func (s *Seeder) CleanDatabase() error {
	tables := []string{"ticket_tiers", "events"}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds a handful of bookable events, each with a couple of tiers.
func (s *Seeder) SeedAll() error {
	eventIDs, err := s.SeedEvents()
	if err != nil {
		return fmt.Errorf("failed to seed events: %w", err)
	}
	return s.SeedTiers(eventIDs)
}

func (s *Seeder) SeedEvents() ([]uuid.UUID, error) {
	fmt.Println("  🎪 Seeding events...")

	eventsData := []struct {
		title       string
		description string
		venue       string
		category    catalog.Category
		daysFromNow int
	}{
		{"Nairobi Tech Mixer", "Monthly meetup for builders and founders.", "Sarit Expo Centre", catalog.CategorySocial, 14},
		{"Afrobeats Live", "An evening of live Afrobeats performances.", "Carnivore Grounds", catalog.CategoryConcert, 21},
		{"Campus Open Day", "University open day for prospective students.", "University of Nairobi", catalog.CategoryUniversity, 30},
		{"Rooftop Club Night", "Late-night sets from resident DJs.", "Alchemist Bar", catalog.CategoryClub, 7},
		{"Festive Market Day", "Holiday market with vendors and entertainment.", "Two Rivers Mall", catalog.CategoryHoliday, 45},
	}

	var eventIDs []uuid.UUID
	for _, e := range eventsData {
		event := catalog.Event{
			ID:          uuid.New(),
			Title:       e.title,
			Description: e.description,
			Venue:       e.venue,
			Start:       time.Now().AddDate(0, 0, e.daysFromNow),
			End:         time.Now().AddDate(0, 0, e.daysFromNow).Add(4 * time.Hour),
			Active:      true,
			Category:    e.category,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		if err := s.db.PostgreSQL.Create(&event).Error; err != nil {
			return nil, fmt.Errorf("failed to create event %s: %w", event.Title, err)
		}

		eventIDs = append(eventIDs, event.ID)
		fmt.Printf("    ✅ Created event: %s\n", event.Title)
	}

	return eventIDs, nil
}

// SeedTiers gives every event a Regular and a VIP tier.
func (s *Seeder) SeedTiers(eventIDs []uuid.UUID) error {
	fmt.Println("  🎟️ Seeding ticket tiers...")

	tierTemplates := []struct {
		name         string
		unitPriceKES int64
		quantity     int
	}{
		{"Regular", 1000, 200},
		{"VIP", 3500, 40},
	}

	for _, eventID := range eventIDs {
		for _, t := range tierTemplates {
			tier := catalog.TicketTier{
				ID:           uuid.New(),
				EventID:      eventID,
				Name:         t.name,
				UnitPriceKES: t.unitPriceKES,
				Quantity:     t.quantity,
				QuantitySold: 0,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}

			if err := s.db.PostgreSQL.Create(&tier).Error; err != nil {
				return fmt.Errorf("failed to create tier %s for event: %w", tier.Name, err)
			}
		}
		fmt.Printf("    ✅ Created tiers for event %s\n", eventID)
	}

	return nil
}
