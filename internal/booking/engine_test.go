package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/pkg/logger"
)

// fakeRepository is an in-memory stand-in for the GORM-backed repository,
// used to exercise the Booking Engine's conditional-update race logic
// without a live Postgres instance. Its completeWithinTx mirrors the real
// implementation's single-writer-wins contract using a mutex.
type fakeRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
	tickets  map[uuid.UUID][]Ticket
	codes    map[string]bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		bookings: make(map[uuid.UUID]*Booking),
		tickets:  make(map[uuid.UUID][]Ticket),
		codes:    make(map[string]bool),
	}
}

func (f *fakeRepository) Create(b *Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeRepository) GetByID(id uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *b
	return &cp, nil
}

func (f *fakeRepository) GetTicketsByBookingID(bookingID uuid.UUID) ([]Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Ticket(nil), f.tickets[bookingID]...), nil
}

func (f *fakeRepository) completeWithinTx(bookingID uuid.UUID, paymentRef, paymentPhone string, codes []string) (bool, []Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[bookingID]
	if !ok {
		return false, nil, assert.AnError
	}
	if !b.Status.PendingEligible() {
		return false, nil, nil
	}

	b.Status = StatusPaid
	b.PaymentReference = paymentRef
	if paymentPhone != "" {
		b.PaymentPhoneNumber = paymentPhone
	}

	newTickets := make([]Ticket, len(codes))
	for i, code := range codes {
		newTickets[i] = Ticket{ID: uuid.New(), BookingID: bookingID, UniqueCode: code}
	}
	f.tickets[bookingID] = newTickets

	return true, newTickets, nil
}

func (f *fakeRepository) cancelWithinTx(bookingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return assert.AnError
	}
	if b.Status != StatusPaid {
		return bookingerr.New(bookingerr.Conflict, "not paid")
	}
	b.Status = StatusCancelled
	return nil
}

func (f *fakeRepository) GenerateCodes(n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}
		for f.codes[code] {
			code, err = randomCode()
			if err != nil {
				return nil, err
			}
		}
		f.codes[code] = true
		codes[i] = code
	}
	return codes, nil
}

func (f *fakeRepository) ListStalePending() ([]Booking, error) {
	return nil, nil
}

func newAwaitingBooking(quantity int) *Booking {
	return &Booking{
		ID:             uuid.New(),
		TierID:         uuid.New(),
		Quantity:       quantity,
		TotalAmountKES: int64(quantity * 500),
		Status:         StatusAwaitingPayment,
		PaymentMethod:  PaymentMethodMPESA,
		ExpiryTime:     time.Now().Add(10 * time.Minute),
	}
}

func TestCompleteBooking_HappyPath(t *testing.T) {
	repo := newFakeRepository()
	b := newAwaitingBooking(2)
	require.NoError(t, repo.Create(b))

	engine := NewEngine(repo, logger.New())
	tickets, newlyCompleted, err := engine.CompleteBooking(context.Background(), b.ID, "INV-77", "254712345678")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.True(t, newlyCompleted)

	got, _ := repo.GetByID(b.ID)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, "INV-77", got.PaymentReference)
}

func TestCompleteBooking_IdempotentOnAlreadyPaid(t *testing.T) {
	repo := newFakeRepository()
	b := newAwaitingBooking(1)
	require.NoError(t, repo.Create(b))

	engine := NewEngine(repo, logger.New())
	first, firstNew, err := engine.CompleteBooking(context.Background(), b.ID, "ref-A", "")
	require.NoError(t, err)
	assert.True(t, firstNew)

	second, secondNew, err := engine.CompleteBooking(context.Background(), b.ID, "ref-B", "")
	require.NoError(t, err)
	assert.False(t, secondNew, "a replay of an already-PAID booking must not report a new completion")

	assert.Equal(t, first, second, "repeated completion of an already-PAID booking must return the same tickets")
}

func TestCompleteBooking_ConcurrentWebhooksFirstWriterWins(t *testing.T) {
	repo := newFakeRepository()
	b := newAwaitingBooking(3)
	require.NoError(t, repo.Create(b))

	engine := NewEngine(repo, logger.New())

	var wg sync.WaitGroup
	results := make([][]Ticket, 2)
	newlyCompleted := make([]bool, 2)
	errs := make([]error, 2)
	refs := []string{"ref-A", "ref-B"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], newlyCompleted[i], errs[i] = engine.CompleteBooking(context.Background(), b.ID, refs[i], "")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1], "both concurrent completions must observe the same ticket set")
	assert.Len(t, results[0], 3)
	assert.NotEqual(t, newlyCompleted[0], newlyCompleted[1], "exactly one concurrent completion must report the new transition")

	got, _ := repo.GetByID(b.ID)
	assert.Contains(t, []string{"ref-A", "ref-B"}, got.PaymentReference)
}

func TestCompleteBooking_MissingBooking(t *testing.T) {
	repo := newFakeRepository()
	engine := NewEngine(repo, logger.New())
	_, _, err := engine.CompleteBooking(context.Background(), uuid.New(), "ref", "")
	require.Error(t, err)
	assert.Equal(t, bookingerr.NotFound, bookingerr.KindOf(err))
}

func TestCompleteBooking_InvalidState(t *testing.T) {
	repo := newFakeRepository()
	b := newAwaitingBooking(1)
	b.Status = StatusCancelled
	require.NoError(t, repo.Create(b))

	engine := NewEngine(repo, logger.New())
	_, _, err := engine.CompleteBooking(context.Background(), b.ID, "ref", "")
	require.Error(t, err)
	assert.Equal(t, bookingerr.InvalidState, bookingerr.KindOf(err))
}

func TestCancelBooking_OnlyPaidIsCancellable(t *testing.T) {
	repo := newFakeRepository()
	b := newAwaitingBooking(4)
	require.NoError(t, repo.Create(b))

	engine := NewEngine(repo, logger.New())
	err := engine.CancelBooking(context.Background(), b.ID, "refund")
	require.Error(t, err)
	assert.Equal(t, bookingerr.Conflict, bookingerr.KindOf(err))

	_, _, err = engine.CompleteBooking(context.Background(), b.ID, "ref", "")
	require.NoError(t, err)

	require.NoError(t, engine.CancelBooking(context.Background(), b.ID, "refund"))
	got, _ := repo.GetByID(b.ID)
	assert.Equal(t, StatusCancelled, got.Status)
}
