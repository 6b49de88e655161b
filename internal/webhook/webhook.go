// Package webhook is the Webhook Ingress (spec §4.10): the HTTP-adjacent
// component that receives provider callbacks and the inbound user webhook,
// drives the Booking Engine to completion, and hands off to the Ticket
// Issuer for confirmation delivery. It always replies with the provider's
// expected acknowledgement shape, even on internal error, to avoid
// redelivery storms (spec §7, §4.10).
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ticketconcierge/internal/booking"
	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/conversation"
	"ticketconcierge/internal/messaging"
	"ticketconcierge/internal/payment/hosted"
	"ticketconcierge/internal/ticketing"
	"ticketconcierge/internal/users"
	"ticketconcierge/pkg/logger"
)

// Handlers groups the three webhook endpoints (user, STK, hosted-redirect).
type Handlers struct {
	controller  *conversation.Controller
	messaging   messaging.Client
	bookings    booking.Engine
	catalog     catalog.Service
	userRepo    users.Repository
	tickets     ticketing.Publisher
	hostedAdapt hosted.Adapter
	verifyToken string
	log         *logger.Logger
}

// NewHandlers wires the ingress to the collaborators it drives.
func NewHandlers(
	controller *conversation.Controller,
	messagingClient messaging.Client,
	bookings booking.Engine,
	catalogSvc catalog.Service,
	userRepo users.Repository,
	tickets ticketing.Publisher,
	hostedAdapt hosted.Adapter,
	verifyToken string,
	log *logger.Logger,
) *Handlers {
	return &Handlers{
		controller:  controller,
		messaging:   messagingClient,
		bookings:    bookings,
		catalog:     catalogSvc,
		userRepo:    userRepo,
		tickets:     tickets,
		hostedAdapt: hostedAdapt,
		verifyToken: verifyToken,
		log:         log,
	}
}

// VerifyUserWebhook handles GET /webhook, the platform's subscription
// verification ping (spec §6).
func (h *Handlers) VerifyUserWebhook(c *gin.Context) {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.verifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.Status(http.StatusForbidden)
}

// ReceiveUserMessage handles POST /webhook. Always replies 200 immediately;
// any internal error is logged, never propagated (spec §4.10).
func (h *Handlers) ReceiveUserMessage(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}

	msg, ok, err := messaging.ParseInbound(raw)
	if err != nil {
		h.log.ErrorWithContext(c.Request.Context(), "failed to parse inbound webhook payload", err, nil)
		c.Status(http.StatusOK)
		return
	}
	if !ok {
		c.Status(http.StatusOK)
		return
	}

	if msg.MessageID != "" {
		h.messaging.SendReadReceipt(c.Request.Context(), msg.MessageID)
	}

	h.controller.HandleInbound(c.Request.Context(), msg)
	c.Status(http.StatusOK)
}

// stkWebhookPayload mirrors the STK provider's callback fields (spec §6).
type stkWebhookPayload struct {
	Challenge string `json:"challenge" form:"challenge"`
	State     string `json:"state" form:"state"`
	APIRef    string `json:"api_ref" form:"api_ref"`
	InvoiceID string `json:"invoice_id" form:"invoice_id"`
	Account   string `json:"account" form:"account"`
}

// ReceiveSTKPayment handles POST /webhooks/stk. Always responds "OK",
// regardless of outcome — the provider retries on anything else (spec §7, §9).
func (h *Handlers) ReceiveSTKPayment(c *gin.Context) {
	var payload stkWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.String(http.StatusOK, "OK")
		return
	}

	if payload.Challenge != "complete" || payload.State != "COMPLETE" {
		c.String(http.StatusOK, "OK")
		return
	}

	bookingID, err := uuid.Parse(payload.APIRef)
	if err != nil {
		h.log.ErrorWithContext(c.Request.Context(), "STK webhook carried an unparsable booking id", err, map[string]interface{}{"api_ref": payload.APIRef})
		c.String(http.StatusOK, "OK")
		return
	}

	h.completeAndDeliver(c.Request.Context(), "stk", bookingID, payload.InvoiceID, payload.Account)
	c.String(http.StatusOK, "OK")
}

// hostedEcho is the response shape both hosted-redirect webhook verbs
// always return (spec §6).
type hostedEcho struct {
	OrderNotificationType string `json:"orderNotificationType"`
	OrderTrackingID       string `json:"orderTrackingId"`
	Status                int    `json:"status"`
}

// ReceiveHostedPing handles GET /webhooks/hosted — a URL-validation ping the
// provider sends when a callback URL is first registered (scenario S6).
func (h *Handlers) ReceiveHostedPing(c *gin.Context) {
	c.JSON(http.StatusOK, hostedEcho{
		OrderNotificationType: c.Query("OrderNotificationType"),
		OrderTrackingID:       c.Query("OrderTrackingId"),
		Status:                http.StatusOK,
	})
}

// ReceiveHostedPayment handles POST /webhooks/hosted: fetch transaction
// status, and if Completed, drive completion (spec §4.10).
func (h *Handlers) ReceiveHostedPayment(c *gin.Context) {
	trackingID := c.PostForm("OrderTrackingId")
	if trackingID == "" {
		trackingID = c.Query("OrderTrackingId")
	}
	notificationType := c.PostForm("OrderNotificationType")
	if notificationType == "" {
		notificationType = c.Query("OrderNotificationType")
	}

	status, err := h.hostedAdapt.GetTransactionStatus(c.Request.Context(), trackingID)
	code := http.StatusOK
	switch {
	case err != nil:
		code = http.StatusInternalServerError
		h.log.ErrorWithContext(c.Request.Context(), "failed to fetch hosted transaction status", err, map[string]interface{}{"order_tracking_id": trackingID})
	case !status.Completed:
		// Not yet paid; nothing to do, acknowledge and wait for a later callback.
	default:
		bookingID, parseErr := uuid.Parse(status.BookingID)
		if parseErr != nil {
			code = http.StatusOK
			h.log.ErrorWithContext(c.Request.Context(), "hosted webhook carried an unparsable booking id", parseErr, map[string]interface{}{"order_tracking_id": trackingID})
			break
		}
		h.completeAndDeliver(c.Request.Context(), "hosted", bookingID, status.PaymentReference, status.PayerPhone)
	}

	c.JSON(code, hostedEcho{OrderNotificationType: notificationType, OrderTrackingID: trackingID, Status: code})
}

// completeAndDeliver drives the Booking Engine to completion and, only when
// this call is the one that actually won the completion race, hands off to
// the Ticket Issuer for confirmation delivery (spec §4.7 step 4, §4.8,
// §4.10: "no duplicate confirmation message" on a concurrent or replayed
// webhook). The engine's own conditional update is the serialization point —
// a pre-read here would race it (spec §5, scenario S2).
func (h *Handlers) completeAndDeliver(ctx context.Context, provider string, bookingID uuid.UUID, paymentRef, paymentPhone string) {
	tickets, newlyCompleted, err := h.bookings.CompleteBooking(ctx, bookingID, paymentRef, paymentPhone)
	if err != nil {
		h.log.LogPaymentWebhook(ctx, provider, bookingID.String(), err)
		return
	}
	if !newlyCompleted {
		return
	}

	h.deliverConfirmation(ctx, bookingID, tickets)
}

// deliverConfirmation publishes one confirmation-text job and one
// ticket-image job per ticket (spec §4.8). Failures here are logged and
// swallowed — they never affect the already-committed booking.
func (h *Handlers) deliverConfirmation(ctx context.Context, bookingID uuid.UUID, tickets []booking.Ticket) {
	if h.tickets == nil {
		h.log.ErrorWithContext(ctx, "ticket delivery publisher unavailable, skipping confirmation delivery", fmt.Errorf("nil ticketing.Publisher"), map[string]interface{}{"booking_id": bookingID.String()})
		return
	}

	b, err := h.bookings.GetByID(bookingID)
	if err != nil {
		h.log.ErrorWithContext(ctx, "failed to reload booking for confirmation delivery", err, map[string]interface{}{"booking_id": bookingID.String()})
		return
	}
	tier, err := h.catalog.GetTier(b.TierID)
	if err != nil {
		h.log.ErrorWithContext(ctx, "failed to load tier for confirmation delivery", err, map[string]interface{}{"booking_id": bookingID.String()})
		return
	}
	user, err := h.userRepo.GetByID(b.UserID)
	if err != nil {
		h.log.ErrorWithContext(ctx, "failed to load user for confirmation delivery", err, map[string]interface{}{"booking_id": bookingID.String()})
		return
	}

	codes := make([]string, 0, len(tickets))
	for _, t := range tickets {
		codes = append(codes, t.UniqueCode)
	}

	eventTitle, venue, start := "", "", ""
	if tier.Event != nil {
		eventTitle = tier.Event.Title
		venue = tier.Event.Venue
		start = tier.Event.Start.Format("Jan 2, 3:04 PM")
	}

	confirmJob := ticketing.DeliveryJob{
		Kind:       ticketing.JobConfirmationText,
		Phone:      user.Phone,
		BookingID:  bookingID.String(),
		EventTitle: eventTitle,
		Venue:      venue,
		StartTime:  start,
		TierName:   tier.Name,
		Quantity:   b.Quantity,
		TotalKES:   b.TotalAmountKES,
		Codes:      codes,
	}
	if err := h.tickets.PublishConfirmation(ctx, confirmJob); err != nil {
		h.log.ErrorWithContext(ctx, "failed to publish confirmation delivery job", err, map[string]interface{}{"booking_id": bookingID.String()})
	}

	caption := fmt.Sprintf("%s — %s", eventTitle, tier.Name)
	for _, t := range tickets {
		imageJob := ticketing.DeliveryJob{
			Kind:       ticketing.JobTicketImage,
			Phone:      user.Phone,
			BookingID:  bookingID.String(),
			TicketCode: t.UniqueCode,
			Caption:    caption,
		}
		if err := h.tickets.PublishTicketImage(ctx, imageJob); err != nil {
			h.log.ErrorWithContext(ctx, "failed to publish ticket image delivery job", err, map[string]interface{}{"booking_id": bookingID.String(), "ticket_code": t.UniqueCode})
		}
	}
}
