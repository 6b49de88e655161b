package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketconcierge/internal/booking"
	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/messaging"
	"ticketconcierge/internal/payment/hosted"
	"ticketconcierge/internal/session"
	"ticketconcierge/internal/users"
	"ticketconcierge/pkg/cache"
	"ticketconcierge/pkg/logger"
)

// -- fakes --------------------------------------------------------------

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}
func (m *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

type fakeCatalog struct {
	events map[uuid.UUID]*catalog.Event
	tiers  map[uuid.UUID]*catalog.TicketTier
}

func (f *fakeCatalog) ListCategories() []catalog.Category { return catalog.AllCategories() }
func (f *fakeCatalog) ListEventsByCategory(cat catalog.Category) ([]catalog.Event, error) {
	var out []catalog.Event
	for _, e := range f.events {
		if e.Category == cat {
			out = append(out, *e)
		}
	}
	return out, nil
}
func (f *fakeCatalog) ListEvents(cat *catalog.Category) ([]catalog.Event, error) { return nil, nil }
func (f *fakeCatalog) GetEvent(id uuid.UUID) (*catalog.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, assertAnError
	}
	cp := *e
	return &cp, nil
}
func (f *fakeCatalog) GetTier(id uuid.UUID) (*catalog.TicketTier, error) {
	t, ok := f.tiers[id]
	if !ok {
		return nil, assertAnError
	}
	cp := *t
	return &cp, nil
}

var assertAnError = &notFoundErr{}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "not found" }

type fakeLocks struct{ granted bool }

func (f *fakeLocks) Acquire(ctx context.Context, resource string, ttl time.Duration, owner string) bool {
	return f.granted
}
func (f *fakeLocks) ReleaseOwned(ctx context.Context, resource, owner string) bool { return true }
func (f *fakeLocks) ForceRelease(ctx context.Context, resource string)            {}

type fakeUsers struct{}

func (f *fakeUsers) GetByPhone(phone string) (*users.User, error) {
	return &users.User{ID: uuid.New(), Phone: phone}, nil
}
func (f *fakeUsers) GetOrCreate(phone, name string) (*users.User, error) {
	return &users.User{ID: uuid.New(), Phone: phone}, nil
}
func (f *fakeUsers) GetByID(id uuid.UUID) (*users.User, error) {
	return &users.User{ID: id, Phone: "254712345678"}, nil
}

type fakeBookings struct{}

func (f *fakeBookings) CreatePending(ctx context.Context, userID, tierID uuid.UUID, quantity int, total int64, method booking.PaymentMethod, paymentPhone string) (*booking.Booking, error) {
	return &booking.Booking{ID: uuid.New(), TierID: tierID, Quantity: quantity, TotalAmountKES: total, Status: booking.StatusAwaitingPayment}, nil
}
func (f *fakeBookings) CompleteBooking(ctx context.Context, bookingID uuid.UUID, ref, phone string) ([]booking.Ticket, bool, error) {
	return nil, false, nil
}
func (f *fakeBookings) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return nil
}
func (f *fakeBookings) GetByID(bookingID uuid.UUID) (*booking.Booking, error) {
	return &booking.Booking{ID: bookingID}, nil
}

type fakeHosted struct{}

func (f *fakeHosted) GetPaymentLink(ctx context.Context, b hosted.Booking) (string, error) {
	return "https://pay.example/abc", nil
}
func (f *fakeHosted) GetTransactionStatus(ctx context.Context, id string) (hosted.TransactionStatus, error) {
	return hosted.TransactionStatus{}, nil
}

type recordingMessaging struct {
	texts []string
	lists int
}

func (m *recordingMessaging) SendText(ctx context.Context, phone, body string) error {
	m.texts = append(m.texts, body)
	return nil
}
func (m *recordingMessaging) SendButtons(ctx context.Context, phone, body string, buttons []messaging.Button) error {
	m.texts = append(m.texts, body)
	return nil
}
func (m *recordingMessaging) SendList(ctx context.Context, phone, body, buttonText string, sections []messaging.ListSection) error {
	m.lists++
	return nil
}
func (m *recordingMessaging) SendTicketImage(ctx context.Context, phone, mediaID, caption string) error {
	return nil
}
func (m *recordingMessaging) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "", nil
}
func (m *recordingMessaging) SendReadReceipt(ctx context.Context, messageID string) {}

// -- tests ---------------------------------------------------------------

func newTestController(t *testing.T, fc *fakeCatalog, fl *fakeLocks, msg *recordingMessaging) (*Controller, session.Store) {
	t.Helper()
	store := session.NewStore(newMemCache(), 600*time.Second, logger.New())
	ctrl := NewController(
		store, fc, fl, &fakeUsers{}, &fakeBookings{},
		nil, &fakeHosted{}, msg, logger.New(), 5, "", "",
	)
	return ctrl, store
}

func TestDispatch_InvalidQuantityCorrective(t *testing.T) {
	tierID := uuid.New()
	eventID := uuid.New()
	fc := &fakeCatalog{
		events: map[uuid.UUID]*catalog.Event{},
		tiers: map[uuid.UUID]*catalog.TicketTier{
			tierID: {ID: tierID, EventID: eventID, Name: "General", UnitPriceKES: 500, Quantity: 10,
				Event: &catalog.Event{ID: eventID, Active: true, Start: time.Now().Add(24 * time.Hour)}},
		},
	}
	msg := &recordingMessaging{}
	ctrl, store := newTestController(t, fc, &fakeLocks{granted: true}, msg)

	require.NoError(t, store.Update(t.Context(), "254712345678", session.StateSelectingQuantity, session.Data{TierID: tierID.String(), EventID: eventID.String()}))

	err := ctrl.dispatch(t.Context(), "254712345678", "9")
	require.NoError(t, err)

	sess := store.Get(t.Context(), "254712345678")
	assert.Equal(t, session.StateSelectingQuantity, sess.State, "state must not change on out-of-range quantity")
	require.NotEmpty(t, msg.texts)
	assert.Contains(t, msg.texts[len(msg.texts)-1], "between 1 and 5")
}

func TestDispatch_EventSwitchMidTierSelection(t *testing.T) {
	e1 := uuid.New()
	e2 := uuid.New()
	fc := &fakeCatalog{
		events: map[uuid.UUID]*catalog.Event{
			e2: {ID: e2, Active: true, Start: time.Now().Add(24 * time.Hour), Title: "Other Event",
				Tiers: []catalog.TicketTier{{ID: uuid.New(), EventID: e2, Quantity: 5}}},
		},
		tiers: map[uuid.UUID]*catalog.TicketTier{},
	}
	msg := &recordingMessaging{}
	ctrl, store := newTestController(t, fc, &fakeLocks{granted: true}, msg)

	require.NoError(t, store.Update(t.Context(), "254712345678", session.StateSelectingTier, session.Data{EventID: e1.String()}))

	err := ctrl.dispatch(t.Context(), "254712345678", e2.String())
	require.NoError(t, err)

	sess := store.Get(t.Context(), "254712345678")
	assert.Equal(t, session.StateSelectingTier, sess.State)
	assert.Equal(t, e2.String(), sess.Data.EventID)
}

func TestDispatch_GlobalCommandResetsSession(t *testing.T) {
	fc := &fakeCatalog{events: map[uuid.UUID]*catalog.Event{}, tiers: map[uuid.UUID]*catalog.TicketTier{}}
	msg := &recordingMessaging{}
	ctrl, store := newTestController(t, fc, &fakeLocks{granted: true}, msg)

	require.NoError(t, store.Update(t.Context(), "254712345678", session.StateSelectingTier, session.Data{EventID: uuid.New().String()}))

	err := ctrl.dispatch(t.Context(), "254712345678", "menu")
	require.NoError(t, err)

	sess := store.Get(t.Context(), "254712345678")
	assert.Equal(t, session.StateSelectingCategory, sess.State)
	assert.Equal(t, 1, msg.lists)
}

func TestAntiLoopGuard_SuppressesRapidResend(t *testing.T) {
	fc := &fakeCatalog{events: map[uuid.UUID]*catalog.Event{}, tiers: map[uuid.UUID]*catalog.TicketTier{}}
	msg := &recordingMessaging{}
	ctrl, _ := newTestController(t, fc, &fakeLocks{granted: true}, msg)

	require.NoError(t, ctrl.sendCategoryList(t.Context(), "254712345678", false))
	require.NoError(t, ctrl.sendCategoryList(t.Context(), "254712345678", false))

	assert.Equal(t, 1, msg.lists, "second send within the anti-loop window must be suppressed")
}
