// Package conversation implements the Conversation Controller (spec §4.9):
// the per-user state machine that consumes inbound messages, invokes the
// catalog, lock registry, booking engine and payment adapters, and emits
// outbound messages.
package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketconcierge/internal/booking"
	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/lockregistry"
	"ticketconcierge/internal/messaging"
	"ticketconcierge/internal/payment/hosted"
	"ticketconcierge/internal/payment/stk"
	phonepkg "ticketconcierge/internal/phone"
	"ticketconcierge/internal/session"
	"ticketconcierge/internal/users"
	"ticketconcierge/pkg/logger"
)

const (
	backToCategories = "BACK_TO_CATEGORIES"
	lockTTL          = 10 * time.Minute
	antiLoopWindow   = 5 * time.Second
)

var globalCommands = map[string]bool{
	"hi": true, "menu": true, "start": true, "restart": true, "reset": true, "cancel": true,
}

// Controller is the Conversation Controller.
type Controller struct {
	sessions    session.Store
	catalog     catalog.Service
	locks       lockregistry.Registry
	users       users.Repository
	bookings    booking.Engine
	stkAdapt    stk.Adapter
	hostedAdapt hosted.Adapter
	messaging   messaging.Client
	log         *logger.Logger

	maxQuantity int
	callbackURL string
	botPhone    string

	mu                sync.Mutex
	lastCategoryMenus map[string]time.Time
}

func NewController(
	sessions session.Store,
	catalogSvc catalog.Service,
	locks lockregistry.Registry,
	userRepo users.Repository,
	bookings booking.Engine,
	stkAdapt stk.Adapter,
	hostedAdapt hosted.Adapter,
	messagingClient messaging.Client,
	log *logger.Logger,
	maxQuantity int,
	callbackURL string,
	botPhone string,
) *Controller {
	return &Controller{
		sessions:          sessions,
		catalog:           catalogSvc,
		locks:             locks,
		users:             userRepo,
		bookings:          bookings,
		stkAdapt:          stkAdapt,
		hostedAdapt:       hostedAdapt,
		messaging:         messagingClient,
		log:               log,
		maxQuantity:       maxQuantity,
		callbackURL:       callbackURL,
		botPhone:          botPhone,
		lastCategoryMenus: make(map[string]time.Time),
	}
}

// HandleInbound is the single entry point the Webhook Ingress calls for
// every inbound user message (spec §4.10).
func (c *Controller) HandleInbound(ctx context.Context, msg messaging.InboundMessage) {
	normalizedPhone, err := phonepkg.Normalize(msg.Phone)
	if err != nil {
		c.log.ErrorWithContext(ctx, "failed to normalize inbound phone number", err, map[string]interface{}{"phone": phonepkg.Mask(msg.Phone)})
		normalizedPhone = msg.Phone
	}
	if _, err := c.users.GetOrCreate(normalizedPhone, ""); err != nil {
		c.log.ErrorWithContext(ctx, "failed to upsert user on inbound message", err, map[string]interface{}{"phone": phonepkg.Mask(normalizedPhone)})
	}

	// id, falling back to body, per spec §4.9.
	input := msg.ID
	if input == "" {
		input = msg.Body
	}

	if err := c.dispatch(ctx, normalizedPhone, input); err != nil {
		c.log.ErrorWithContext(ctx, "conversation dispatch failed", err, map[string]interface{}{"phone": phonepkg.Mask(normalizedPhone)})
		c.sendGeneric(ctx, normalizedPhone)
	}
}

func (c *Controller) dispatch(ctx context.Context, phone, input string) error {
	if globalCommands[strings.ToLower(strings.TrimSpace(input))] {
		if err := c.sessions.Clear(ctx, phone); err != nil {
			return err
		}
		if err := c.sessions.Update(ctx, phone, session.StateSelectingCategory, session.Data{}); err != nil {
			return err
		}
		return c.sendCategoryList(ctx, phone, true)
	}

	sess := c.sessions.Get(ctx, phone)

	switch sess.State {
	case session.StateIdle:
		if err := c.sessions.Update(ctx, phone, session.StateSelectingCategory, session.Data{}); err != nil {
			return err
		}
		return c.sendCategoryList(ctx, phone, false)
	case session.StateSelectingCategory:
		return c.handleSelectingCategory(ctx, phone, input)
	case session.StateBrowsingEvents:
		return c.handleBrowsingEvents(ctx, phone, input)
	case session.StateSelectingTier:
		return c.handleSelectingTier(ctx, phone, sess, input)
	case session.StateSelectingQuantity:
		return c.handleSelectingQuantity(ctx, phone, sess, input)
	case session.StateAwaitingPaymentMethod:
		return c.handleAwaitingPaymentMethod(ctx, phone, sess, input)
	case session.StateAwaitingPaymentPhone:
		return c.handleAwaitingPaymentPhone(ctx, phone, sess, input)
	case session.StateAwaitingSTKPush:
		return c.handleAwaitingSTKPush(ctx, phone)
	default:
		return c.sendCategoryList(ctx, phone, false)
	}
}

func (c *Controller) handleSelectingCategory(ctx context.Context, phone, input string) error {
	cat := catalog.Category(strings.ToUpper(strings.TrimSpace(input)))
	if !cat.IsValid() {
		return c.sendCategoryList(ctx, phone, true)
	}

	events, err := c.catalog.ListEventsByCategory(cat)
	if err != nil {
		return err
	}

	if err := c.sessions.Update(ctx, phone, session.StateBrowsingEvents, session.Data{SelectedCategory: string(cat)}); err != nil {
		return err
	}
	c.sendEventsList(ctx, phone, events)
	return nil
}

func (c *Controller) handleBrowsingEvents(ctx context.Context, phone, input string) error {
	if input == backToCategories {
		return c.backToCategories(ctx, phone)
	}

	id, err := uuid.Parse(input)
	if err != nil {
		return c.eventUnavailable(ctx, phone)
	}

	event, err := c.catalog.GetEvent(id)
	if err != nil || !event.IsBookable(time.Now()) || !hasAvailableTier(event) {
		return c.eventUnavailable(ctx, phone)
	}

	if err := c.sessions.Update(ctx, phone, session.StateSelectingTier, session.Data{EventID: event.ID.String()}); err != nil {
		return err
	}
	c.sendTierList(ctx, phone, event)
	return nil
}

func (c *Controller) eventUnavailable(ctx context.Context, phone string) error {
	c.messaging.SendText(ctx, phone, "That event isn't available anymore.")
	return c.backToCategories(ctx, phone)
}

func hasAvailableTier(event *catalog.Event) bool {
	for _, t := range event.Tiers {
		if t.Available() > 0 {
			return true
		}
	}
	return false
}

func (c *Controller) handleSelectingTier(ctx context.Context, phone string, sess session.Session, input string) error {
	if input == backToCategories {
		return c.backToCategories(ctx, phone)
	}

	id, err := uuid.Parse(input)
	if err != nil {
		return c.tierResolvesToNothing(ctx, phone)
	}

	tier, err := c.catalog.GetTier(id)
	if err == nil {
		if tier.Event == nil || tier.EventID.String() != sess.Data.EventID || !tier.Event.IsBookable(time.Now()) || tier.Available() <= 0 {
			return c.tierResolvesToNothing(ctx, phone)
		}
		if err := c.sessions.Update(ctx, phone, session.StateSelectingQuantity, session.Data{TierID: tier.ID.String()}); err != nil {
			return err
		}
		c.messaging.SendText(ctx, phone, fmt.Sprintf("How many tickets? (1-%d)", c.maxQuantity))
		return nil
	}

	// Not a tier id — the user may have tapped a stale row for a different
	// event. Silently re-open that event's tier list (spec §4.9, scenario S4).
	event, eventErr := c.catalog.GetEvent(id)
	if eventErr != nil || !event.IsBookable(time.Now()) || !hasAvailableTier(event) {
		return c.tierResolvesToNothing(ctx, phone)
	}
	if err := c.sessions.Update(ctx, phone, session.StateSelectingTier, session.Data{EventID: event.ID.String()}); err != nil {
		return err
	}
	c.sendTierList(ctx, phone, event)
	return nil
}

func (c *Controller) tierResolvesToNothing(ctx context.Context, phone string) error {
	c.messaging.SendText(ctx, phone, "That option isn't available anymore.")
	return c.backToCategories(ctx, phone)
}

func (c *Controller) handleSelectingQuantity(ctx context.Context, phone string, sess session.Session, input string) error {
	qty, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || qty < 1 || qty > c.maxQuantity {
		c.messaging.SendText(ctx, phone, fmt.Sprintf("Please type a number between 1 and %d", c.maxQuantity))
		return nil
	}

	tierID, err := uuid.Parse(sess.Data.TierID)
	if err != nil {
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}

	resource := fmt.Sprintf("tier:%s:user:%s", tierID, phone)
	if !c.locks.Acquire(ctx, resource, lockTTL, phone) {
		c.messaging.SendText(ctx, phone, "We're seeing high demand for this tier right now. Please try again shortly.")
		return c.sessions.Clear(ctx, phone)
	}

	tier, err := c.catalog.GetTier(tierID)
	if err != nil {
		return err
	}
	total := tier.UnitPriceKES * int64(qty)

	if err := c.sessions.Update(ctx, phone, session.StateAwaitingPaymentMethod, session.Data{Quantity: qty, TotalAmount: total}); err != nil {
		return err
	}

	return c.messaging.SendButtons(ctx, phone, fmt.Sprintf("Total: KES %d. How would you like to pay?", total), []messaging.Button{
		{ID: "mpesa", Title: "M-Pesa"},
		{ID: "card", Title: "Card"},
	})
}

func (c *Controller) handleAwaitingPaymentMethod(ctx context.Context, phone string, sess session.Session, input string) error {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "mpesa":
		if err := c.sessions.Update(ctx, phone, session.StateAwaitingPaymentPhone, session.Data{PaymentMethod: string(booking.PaymentMethodMPESA)}); err != nil {
			return err
		}
		return c.messaging.SendButtons(ctx, phone, "Use this WhatsApp number for the M-Pesa prompt?", []messaging.Button{
			{ID: "yes", Title: "Yes"},
			{ID: "no", Title: "No"},
		})
	case "card":
		return c.createBookingAndHostedLink(ctx, phone, sess)
	default:
		return c.messaging.SendButtons(ctx, phone, "Please choose a payment method.", []messaging.Button{
			{ID: "mpesa", Title: "M-Pesa"},
			{ID: "card", Title: "Card"},
		})
	}
}

func (c *Controller) handleAwaitingPaymentPhone(ctx context.Context, phone string, sess session.Session, input string) error {
	paymentPhone := phone
	if strings.ToLower(strings.TrimSpace(input)) != "yes" {
		normalized, err := phonepkg.Normalize(input)
		if err != nil {
			c.messaging.SendText(ctx, phone, "That phone number doesn't look right. Please send a valid M-Pesa number.")
			return nil
		}
		paymentPhone = normalized
	}

	return c.createBookingAndInitiateSTK(ctx, phone, sess, paymentPhone)
}

func (c *Controller) handleAwaitingSTKPush(ctx context.Context, phone string) error {
	c.messaging.SendText(ctx, phone, "Your payment is being processed. We'll confirm as soon as it's done.")
	return nil
}

func (c *Controller) createBookingAndInitiateSTK(ctx context.Context, phone string, sess session.Session, paymentPhone string) error {
	u, err := c.users.GetOrCreate(phone, "")
	if err != nil {
		return err
	}
	tierID, err := uuid.Parse(sess.Data.TierID)
	if err != nil {
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}

	b, err := c.bookings.CreatePending(ctx, u.ID, tierID, sess.Data.Quantity, sess.Data.TotalAmount, booking.PaymentMethodMPESA, paymentPhone)
	if err != nil {
		return err
	}

	_, _, err = c.stkAdapt.Initiate(ctx, paymentPhone, b.TotalAmountKES, b.ID.String())
	if err != nil {
		c.log.ErrorWithContext(ctx, "STK initiate failed", err, map[string]interface{}{"booking_id": b.ID.String()})
		c.messaging.SendButtons(ctx, phone, "We couldn't reach M-Pesa just now. Try again?", []messaging.Button{
			{ID: "mpesa", Title: "M-Pesa"},
			{ID: "card", Title: "Card"},
		})
		return c.sessions.Update(ctx, phone, session.StateAwaitingPaymentMethod, session.Data{})
	}

	return c.sessions.Update(ctx, phone, session.StateAwaitingSTKPush, session.Data{TempBookingID: b.ID.String()})
}

func (c *Controller) createBookingAndHostedLink(ctx context.Context, phone string, sess session.Session) error {
	u, err := c.users.GetOrCreate(phone, "")
	if err != nil {
		return err
	}
	tierID, err := uuid.Parse(sess.Data.TierID)
	if err != nil {
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}

	b, err := c.bookings.CreatePending(ctx, u.ID, tierID, sess.Data.Quantity, sess.Data.TotalAmount, booking.PaymentMethodCard, "")
	if err != nil {
		return err
	}

	tier, err := c.catalog.GetTier(tierID)
	description := "Ticket purchase"
	if err == nil && tier.Event != nil {
		description = fmt.Sprintf("%s — %s", tier.Event.Title, tier.Name)
	}

	redirectURL, err := c.hostedAdapt.GetPaymentLink(ctx, hosted.Booking{
		ID:          b.ID.String(),
		AmountKES:   b.TotalAmountKES,
		Description: description,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		c.log.ErrorWithContext(ctx, "hosted payment link mint failed", err, map[string]interface{}{"booking_id": b.ID.String()})
		c.messaging.SendText(ctx, phone, "We couldn't set up your card payment just now. Please type 'menu' to try again.")
		return c.sessions.Clear(ctx, phone)
	}

	c.messaging.SendText(ctx, phone, "Complete your payment here: "+redirectURL)
	return c.sessions.Clear(ctx, phone)
}

func (c *Controller) backToCategories(ctx context.Context, phone string) error {
	if err := c.sessions.Update(ctx, phone, session.StateSelectingCategory, session.Data{}); err != nil {
		return err
	}
	return c.sendCategoryList(ctx, phone, false)
}
