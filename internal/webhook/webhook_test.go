package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketconcierge/internal/booking"
	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/messaging"
	"ticketconcierge/internal/payment/hosted"
	"ticketconcierge/internal/ticketing"
	"ticketconcierge/internal/users"
	"ticketconcierge/pkg/logger"
)

// -- fakes ----------------------------------------------------------------

type fakeEngine struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*booking.Booking
	tickets  map[uuid.UUID][]booking.Ticket
	calls    int
}

func newFakeEngine(b *booking.Booking) *fakeEngine {
	return &fakeEngine{
		bookings: map[uuid.UUID]*booking.Booking{b.ID: b},
		tickets:  map[uuid.UUID][]booking.Ticket{},
	}
}

func (f *fakeEngine) CreatePending(ctx context.Context, userID, tierID uuid.UUID, quantity int, total int64, method booking.PaymentMethod, phone string) (*booking.Booking, error) {
	return nil, nil
}

func (f *fakeEngine) CompleteBooking(ctx context.Context, bookingID uuid.UUID, paymentRef, paymentPhone string) ([]booking.Ticket, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	b, ok := f.bookings[bookingID]
	if !ok {
		return nil, false, bookingerr.New(bookingerr.NotFound, "no such booking")
	}
	if b.Status == booking.StatusPaid {
		return f.tickets[bookingID], false, nil
	}
	if !b.Status.PendingEligible() {
		return nil, false, bookingerr.New(bookingerr.InvalidState, "not eligible")
	}
	b.Status = booking.StatusPaid
	b.PaymentReference = paymentRef
	tix := []booking.Ticket{{ID: uuid.New(), BookingID: bookingID, UniqueCode: "AAAA-1111"}}
	f.tickets[bookingID] = tix
	return tix, true, nil
}

func (f *fakeEngine) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return nil
}

func (f *fakeEngine) GetByID(bookingID uuid.UUID) (*booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return nil, bookingerr.New(bookingerr.NotFound, "no such booking")
	}
	cp := *b
	return &cp, nil
}

type fakeCatalogSvc struct {
	tier *catalog.TicketTier
}

func (f *fakeCatalogSvc) ListCategories() []catalog.Category { return nil }
func (f *fakeCatalogSvc) ListEventsByCategory(c catalog.Category) ([]catalog.Event, error) {
	return nil, nil
}
func (f *fakeCatalogSvc) ListEvents(c *catalog.Category) ([]catalog.Event, error) { return nil, nil }
func (f *fakeCatalogSvc) GetEvent(id uuid.UUID) (*catalog.Event, error)           { return nil, nil }
func (f *fakeCatalogSvc) GetTier(id uuid.UUID) (*catalog.TicketTier, error)       { return f.tier, nil }

type fakeUserRepo struct{ user *users.User }

func (f *fakeUserRepo) GetByPhone(phone string) (*users.User, error)          { return f.user, nil }
func (f *fakeUserRepo) GetOrCreate(phone, name string) (*users.User, error)   { return f.user, nil }
func (f *fakeUserRepo) GetByID(id uuid.UUID) (*users.User, error)             { return f.user, nil }

type recordingPublisher struct {
	mu          sync.Mutex
	confirmed   []ticketing.DeliveryJob
	images      []ticketing.DeliveryJob
}

func (p *recordingPublisher) PublishConfirmation(ctx context.Context, job ticketing.DeliveryJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, job)
	return nil
}
func (p *recordingPublisher) PublishTicketImage(ctx context.Context, job ticketing.DeliveryJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, job)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

type stubHosted struct {
	status hosted.TransactionStatus
	err    error
}

func (s *stubHosted) GetPaymentLink(ctx context.Context, b hosted.Booking) (string, error) {
	return "", nil
}
func (s *stubHosted) GetTransactionStatus(ctx context.Context, id string) (hosted.TransactionStatus, error) {
	return s.status, s.err
}

type noopMessaging struct{}

func (noopMessaging) SendText(ctx context.Context, phone, body string) error { return nil }
func (noopMessaging) SendButtons(ctx context.Context, phone, body string, buttons []messaging.Button) error {
	return nil
}
func (noopMessaging) SendList(ctx context.Context, phone, body, buttonText string, sections []messaging.ListSection) error {
	return nil
}
func (noopMessaging) SendTicketImage(ctx context.Context, phone, mediaID, caption string) error {
	return nil
}
func (noopMessaging) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "", nil
}
func (noopMessaging) SendReadReceipt(ctx context.Context, messageID string) {}

func newTestHandlers(t *testing.T, engine *fakeEngine, pub *recordingPublisher, hostedAdpt hosted.Adapter) *Handlers {
	t.Helper()
	tierID := uuid.New()
	eventID := uuid.New()
	tier := &catalog.TicketTier{ID: tierID, EventID: eventID, Name: "General", UnitPriceKES: 500,
		Event: &catalog.Event{ID: eventID, Title: "Test Gala", Venue: "Hall 1"}}
	user := &users.User{ID: uuid.New(), Phone: "254712345678"}

	return NewHandlers(
		nil, // controller is not exercised by the payment-webhook tests
		noopMessaging{},
		engine,
		&fakeCatalogSvc{tier: tier},
		&fakeUserRepo{user: user},
		pub,
		hostedAdpt,
		"verify-me",
		logger.New(),
	)
}

func newGinContext(w *httptest.ResponseRecorder, req *http.Request) (*gin.Context, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	c, r := gin.CreateTestContext(w)
	c.Request = req
	return c, r
}

// -- tests ------------------------------------------------------------------

func TestReceiveSTKPayment_CompletesBookingAndPublishesDeliveries(t *testing.T) {
	bookingID := uuid.New()
	b := &booking.Booking{ID: bookingID, UserID: uuid.New(), TierID: uuid.New(), Quantity: 1, TotalAmountKES: 500, Status: booking.StatusAwaitingPayment}
	engine := newFakeEngine(b)
	pub := &recordingPublisher{}
	h := newTestHandlers(t, engine, pub, &stubHosted{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stk", strings.NewReader(
		`{"challenge":"complete","state":"COMPLETE","api_ref":"`+bookingID.String()+`","invoice_id":"INV-77","account":"254712345678"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	c, _ := newGinContext(rec, req)
	h.ReceiveSTKPayment(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, 1, engine.calls)
	require.Len(t, pub.confirmed, 1)
	assert.Equal(t, "254712345678", pub.confirmed[0].Phone)
	require.Len(t, pub.images, 1)
}

func TestReceiveSTKPayment_NilPublisherStillAcknowledges(t *testing.T) {
	bookingID := uuid.New()
	b := &booking.Booking{ID: bookingID, UserID: uuid.New(), TierID: uuid.New(), Quantity: 1, TotalAmountKES: 500, Status: booking.StatusAwaitingPayment}
	engine := newFakeEngine(b)

	tierID := uuid.New()
	tier := &catalog.TicketTier{ID: tierID, Name: "General", UnitPriceKES: 500}
	h := NewHandlers(
		nil, noopMessaging{}, engine, &fakeCatalogSvc{tier: tier}, &fakeUserRepo{user: &users.User{ID: uuid.New()}},
		nil, // no ticket delivery publisher configured
		&stubHosted{}, "verify-me", logger.New(),
	)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stk", strings.NewReader(
		`{"challenge":"complete","state":"COMPLETE","api_ref":"`+bookingID.String()+`","invoice_id":"INV-77"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	require.NotPanics(t, func() { h.ReceiveSTKPayment(c) })

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, 1, engine.calls)
}

func TestReceiveSTKPayment_IgnoresIncompleteState(t *testing.T) {
	bookingID := uuid.New()
	b := &booking.Booking{ID: bookingID, Status: booking.StatusAwaitingPayment}
	engine := newFakeEngine(b)
	pub := &recordingPublisher{}
	h := newTestHandlers(t, engine, pub, &stubHosted{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stk", strings.NewReader(
		`{"challenge":"complete","state":"PENDING","api_ref":"`+bookingID.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.ReceiveSTKPayment(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, 0, engine.calls)
}

func TestReceiveSTKPayment_IdempotentReplayNoDuplicateConfirmation(t *testing.T) {
	bookingID := uuid.New()
	b := &booking.Booking{ID: bookingID, Status: booking.StatusPaid}
	engine := newFakeEngine(b)
	engine.tickets[bookingID] = []booking.Ticket{{ID: uuid.New(), BookingID: bookingID, UniqueCode: "AAAA-1111"}}
	pub := &recordingPublisher{}
	h := newTestHandlers(t, engine, pub, &stubHosted{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stk", strings.NewReader(
		`{"challenge":"complete","state":"COMPLETE","api_ref":"`+bookingID.String()+`","invoice_id":"INV-77"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.ReceiveSTKPayment(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, pub.confirmed, "a replay of an already-PAID booking must not re-deliver")
	assert.Empty(t, pub.images)
}

func TestReceiveHostedPing_EchoesShape(t *testing.T) {
	h := newTestHandlers(t, newFakeEngine(&booking.Booking{ID: uuid.New()}), &recordingPublisher{}, &stubHosted{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/hosted?OrderNotificationType=IPN_VALIDATE&OrderTrackingId=abc-123", nil)
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.ReceiveHostedPing(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orderNotificationType":"IPN_VALIDATE"`)
	assert.Contains(t, rec.Body.String(), `"orderTrackingId":"abc-123"`)
	assert.Contains(t, rec.Body.String(), `"status":200`)
}

func TestReceiveHostedPayment_CompletesOnCompletedStatus(t *testing.T) {
	bookingID := uuid.New()
	b := &booking.Booking{ID: bookingID, Status: booking.StatusAwaitingPayment}
	engine := newFakeEngine(b)
	pub := &recordingPublisher{}
	hostedAdpt := &stubHosted{status: hosted.TransactionStatus{
		Completed: true, BookingID: bookingID.String(), PaymentReference: "CONF-9", PayerPhone: "254712345678",
	}}
	h := newTestHandlers(t, engine, pub, hostedAdpt)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/hosted", strings.NewReader("OrderTrackingId=track-1&OrderNotificationType=COMPLETE"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.ReceiveHostedPayment(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.calls)
	assert.Len(t, pub.confirmed, 1)
}

func TestReceiveHostedPayment_NotCompletedSkipsBookingEngine(t *testing.T) {
	bookingID := uuid.New()
	engine := newFakeEngine(&booking.Booking{ID: bookingID, Status: booking.StatusAwaitingPayment})
	pub := &recordingPublisher{}
	hostedAdpt := &stubHosted{status: hosted.TransactionStatus{Completed: false}}
	h := newTestHandlers(t, engine, pub, hostedAdpt)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/hosted", strings.NewReader("OrderTrackingId=track-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.ReceiveHostedPayment(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, engine.calls)
}

func TestVerifyUserWebhook_RejectsWrongToken(t *testing.T) {
	h := newTestHandlers(t, newFakeEngine(&booking.Booking{ID: uuid.New()}), &recordingPublisher{}, &stubHosted{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=123", nil)
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.VerifyUserWebhook(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyUserWebhook_EchoesChallengeOnMatch(t *testing.T) {
	h := newTestHandlers(t, newFakeEngine(&booking.Booking{ID: uuid.New()}), &recordingPublisher{}, &stubHosted{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=123456", nil)
	rec := httptest.NewRecorder()
	c, _ := newGinContext(rec, req)

	h.VerifyUserWebhook(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123456", rec.Body.String())
}
