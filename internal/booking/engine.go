package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/pkg/logger"
)

const expiryWindow = 10 * time.Minute

// Engine is the Booking Engine (spec §4.7): create-pending, complete-booking,
// cancel-booking.
type Engine interface {
	CreatePending(ctx context.Context, userID, tierID uuid.UUID, quantity int, totalAmountKES int64, method PaymentMethod, paymentPhone string) (*Booking, error)
	// CompleteBooking returns newlyCompleted=true only for the caller whose
	// call actually transitioned the booking to PAID, so a concurrent or
	// replayed webhook can tell it was not the winner (spec §4.7 step 4,
	// §4.10: "no duplicate confirmation message").
	CompleteBooking(ctx context.Context, bookingID uuid.UUID, paymentRef, paymentPhone string) (tickets []Ticket, newlyCompleted bool, err error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) error
	// GetByID exposes a read-only lookup so collaborators (the Webhook
	// Ingress) can inspect a booking without depending on the storage
	// interface directly.
	GetByID(bookingID uuid.UUID) (*Booking, error)
}

type engine struct {
	repo Repository
	log  *logger.Logger
}

func NewEngine(repo Repository, log *logger.Logger) Engine {
	return &engine{repo: repo, log: log}
}

// CreatePending writes an AWAITING_PAYMENT booking. It never touches
// inventory — only CompleteBooking does (spec §4.7).
func (e *engine) CreatePending(ctx context.Context, userID, tierID uuid.UUID, quantity int, totalAmountKES int64, method PaymentMethod, paymentPhone string) (*Booking, error) {
	b := &Booking{
		UserID:             userID,
		TierID:             tierID,
		Quantity:           quantity,
		TotalAmountKES:     totalAmountKES,
		Status:             StatusAwaitingPayment,
		PaymentMethod:      method,
		PaymentPhoneNumber: paymentPhone,
		ExpiryTime:         time.Now().Add(expiryWindow),
	}
	if err := e.repo.Create(b); err != nil {
		return nil, bookingerr.Wrap(bookingerr.InternalError, err)
	}
	e.log.LogBookingCreated(ctx, b.ID.String(), tierID.String(), paymentPhone)
	return b, nil
}

// CompleteBooking implements spec §4.7's algorithm exactly: idempotency
// shortcut, status guard, out-of-transaction code pre-generation, then the
// single in-transaction conditional update that decides the winner.
func (e *engine) CompleteBooking(ctx context.Context, bookingID uuid.UUID, paymentRef, paymentPhone string) ([]Ticket, bool, error) {
	b, err := e.repo.GetByID(bookingID)
	if err != nil {
		return nil, false, bookingerr.New(bookingerr.NotFound, "booking not found: "+bookingID.String())
	}

	// Step 1: idempotency shortcut.
	if b.Status == StatusPaid {
		tickets, err := e.repo.GetTicketsByBookingID(bookingID)
		if err != nil {
			return nil, false, bookingerr.Wrap(bookingerr.InternalError, err)
		}
		if len(tickets) > 0 {
			return tickets, false, nil
		}
	}

	// Step 2: status guard.
	if !b.Status.PendingEligible() {
		return nil, false, bookingerr.New(bookingerr.InvalidState, "booking is not eligible for completion: "+string(b.Status))
	}

	// Step 3: pre-generate codes outside the transaction.
	codes, err := e.repo.GenerateCodes(b.Quantity)
	if err != nil {
		return nil, false, err
	}

	// Step 4: the single serialization point.
	won, tickets, err := e.repo.completeWithinTx(bookingID, paymentRef, paymentPhone, codes)
	if err != nil {
		return nil, false, bookingerr.Wrap(bookingerr.InternalError, err)
	}

	if !won {
		// Someone else won the race. Satisfy this caller by repeating the
		// idempotency lookup (spec §4.7: "caught and satisfied by repeating
		// step 1 outside the transaction"), but report it as not-newly-completed
		// so the caller never re-delivers a confirmation (spec §4.10).
		final, err := e.repo.GetByID(bookingID)
		if err != nil {
			return nil, false, bookingerr.Wrap(bookingerr.InternalError, err)
		}
		if final.Status != StatusPaid {
			return nil, false, bookingerr.New(bookingerr.AlreadyProcessed, "booking completion lost the race and is not yet visible as PAID")
		}
		winningTickets, err := e.repo.GetTicketsByBookingID(bookingID)
		if err != nil {
			return nil, false, bookingerr.Wrap(bookingerr.InternalError, err)
		}
		e.log.LogBookingCompleted(ctx, bookingID.String(), paymentRef, false)
		return winningTickets, false, nil
	}

	e.log.LogBookingCompleted(ctx, bookingID.String(), paymentRef, true)
	return tickets, true, nil
}

// GetByID is a thin passthrough to the repository for read-only lookups.
func (e *engine) GetByID(bookingID uuid.UUID) (*Booking, error) {
	return e.repo.GetByID(bookingID)
}

// CancelBooking reverses a PAID booking. Tickets are never deleted or
// redeemed — they become dangling receipts of the refunded purchase.
func (e *engine) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) error {
	if err := e.repo.cancelWithinTx(bookingID); err != nil {
		var be *bookingerr.Error
		if bookingerr.As(err, &be) {
			return be
		}
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}
	e.log.LogBookingCancelled(ctx, bookingID.String(), reason)
	return nil
}
