package booking

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/internal/catalog"
)

// Repository is the transactional store backing the Booking Engine.
type Repository interface {
	Create(b *Booking) error
	GetByID(id uuid.UUID) (*Booking, error)
	GetTicketsByBookingID(bookingID uuid.UUID) ([]Ticket, error)

	// completeWithinTx performs spec §4.7 step 4 atomically: conditional
	// update, inventory increment, ticket insert. Returns (won, tickets, err).
	// won == false means another writer already completed this booking.
	completeWithinTx(bookingID uuid.UUID, paymentRef, paymentPhone string, codes []string) (bool, []Ticket, error)

	// cancelWithinTx performs spec §4.7's cancel algorithm atomically.
	cancelWithinTx(bookingID uuid.UUID) error

	GenerateCodes(n int) ([]string, error)
	ListStalePending() ([]Booking, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(b *Booking) error {
	return r.db.Create(b).Error
}

func (r *repository) GetByID(id uuid.UUID) (*Booking, error) {
	var b Booking
	if err := r.db.Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) GetTicketsByBookingID(bookingID uuid.UUID) ([]Ticket, error) {
	tickets := make([]Ticket, 0)
	err := r.db.Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&tickets).Error
	return tickets, err
}

func (r *repository) GenerateCodes(n int) ([]string, error) {
	return generateUniqueCodes(r.db, n)
}

// completeWithinTx is the single serialization point for "first-webhook-wins"
// (spec §4.7's algorithm, step 4). The conditional UPDATE...WHERE status IN
// (...) with an observed RowsAffected is the correctness primitive — not a
// read-then-write, and not an application-level lock.
func (r *repository) completeWithinTx(bookingID uuid.UUID, paymentRef, paymentPhone string, codes []string) (bool, []Ticket, error) {
	var tickets []Ticket
	won := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var booking Booking
		if err := tx.Where("id = ?", bookingID).First(&booking).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":            StatusPaid,
			"payment_reference": paymentRef,
		}
		if paymentPhone != "" {
			updates["payment_phone_number"] = paymentPhone
		}

		result := tx.Model(&Booking{}).
			Where("id = ? AND status IN ?", bookingID, []Status{StatusPending, StatusAwaitingPayment}).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Another writer already transitioned this booking. Not an
			// error at the repository layer — the caller retries the
			// idempotency lookup outside this transaction.
			return nil
		}
		won = true

		var tier catalog.TicketTier
		if err := tx.Where("id = ?", booking.TierID).First(&tier).Error; err != nil {
			return err
		}
		if err := tx.Model(&catalog.TicketTier{}).
			Where("id = ?", booking.TierID).
			UpdateColumn("quantity_sold", gorm.Expr("quantity_sold + ?", booking.Quantity)).Error; err != nil {
			return err
		}

		newTickets := make([]Ticket, len(codes))
		for i, code := range codes {
			newTickets[i] = Ticket{BookingID: bookingID, UniqueCode: code}
		}
		if len(newTickets) > 0 {
			if err := tx.Create(&newTickets).Error; err != nil {
				return err
			}
		}
		tickets = newTickets
		return nil
	})

	return won, tickets, err
}

// cancelWithinTx reverses a PAID booking (spec §4.7 cancel-booking).
func (r *repository) cancelWithinTx(bookingID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var booking Booking
		if err := tx.Where("id = ?", bookingID).First(&booking).Error; err != nil {
			return err
		}

		result := tx.Model(&Booking{}).
			Where("id = ? AND status = ?", bookingID, StatusPaid).
			Update("status", StatusCancelled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return bookingerr.New(bookingerr.Conflict, "booking was not PAID at cancellation time")
		}

		return tx.Model(&catalog.TicketTier{}).
			Where("id = ?", booking.TierID).
			UpdateColumn("quantity_sold", gorm.Expr("quantity_sold - ?", booking.Quantity)).Error
	})
}

// ListStalePending returns PENDING/AWAITING_PAYMENT bookings whose
// expiryTime has passed, for the sweeper's reporting pass (SPEC_FULL §3).
// It deliberately never transitions them: a provider-confirmed payment must
// still be honored by CompleteBooking even after expiryTime (spec §5), so
// the only status this system ever assigns on a timeout path is an
// observability log line, never StatusExpired on a booking still eligible
// for completion.
func (r *repository) ListStalePending() ([]Booking, error) {
	bookings := make([]Booking, 0)
	err := r.db.
		Where("status IN ? AND expiry_time < ?", []Status{StatusPending, StatusAwaitingPayment}, time.Now()).
		Find(&bookings).Error
	return bookings, err
}
