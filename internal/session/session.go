// Package session implements the Session Store (spec §4.2): a
// key→(state, data) store per normalized phone, with sliding TTL and a
// last-resort in-process fallback when the backing cache is unreachable.
package session

import (
	"context"
	"sync"
	"time"

	"ticketconcierge/pkg/cache"
	"ticketconcierge/pkg/logger"
)

// State is one of the Conversation Controller's states (spec §4.9).
type State string

const (
	StateIdle                  State = "IDLE"
	StateSelectingCategory     State = "SELECTING_CATEGORY"
	StateBrowsingEvents        State = "BROWSING_EVENTS"
	StateSelectingTier         State = "SELECTING_TIER"
	StateSelectingQuantity     State = "SELECTING_QUANTITY"
	StateAwaitingPaymentMethod State = "AWAITING_PAYMENT_METHOD"
	StateAwaitingPaymentPhone  State = "AWAITING_PAYMENT_PHONE"
	StateAwaitingSTKPush       State = "AWAITING_STK_PUSH"
)

// Data is the typed bag of recognized session keys (spec §3).
type Data struct {
	EventID         string `json:"eventId,omitempty"`
	SelectedCategory string `json:"selectedCategory,omitempty"`
	TierID          string `json:"tierId,omitempty"`
	Quantity        int    `json:"quantity,omitempty"`
	TotalAmount     int64  `json:"totalAmount,omitempty"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	TempBookingID   string `json:"tempBookingId,omitempty"`
}

// merge applies patch on top of d, right-biased shallow merge over the
// patch's defined (non-zero) fields (spec §8 property 5).
func (d Data) merge(patch Data) Data {
	result := d
	if patch.EventID != "" {
		result.EventID = patch.EventID
	}
	if patch.SelectedCategory != "" {
		result.SelectedCategory = patch.SelectedCategory
	}
	if patch.TierID != "" {
		result.TierID = patch.TierID
	}
	if patch.Quantity != 0 {
		result.Quantity = patch.Quantity
	}
	if patch.TotalAmount != 0 {
		result.TotalAmount = patch.TotalAmount
	}
	if patch.PaymentMethod != "" {
		result.PaymentMethod = patch.PaymentMethod
	}
	if patch.TempBookingID != "" {
		result.TempBookingID = patch.TempBookingID
	}
	return result
}

// Session is the per-phone conversational record.
type Session struct {
	State State `json:"state"`
	Data  Data  `json:"data"`
}

func idle() Session {
	return Session{State: StateIdle, Data: Data{}}
}

// Store is the Session Store contract (spec §4.2).
type Store interface {
	Get(ctx context.Context, phone string) Session
	Update(ctx context.Context, phone string, state State, patch Data) error
	Clear(ctx context.Context, phone string) error
}

type fallbackEntry struct {
	session   Session
	expiresAt time.Time
}

// store backs onto a remote cache.Service and degrades to an in-process map,
// protected by a mutex, when the remote store errors (spec §4.2, §5).
//
// The fallback is last-resort availability at the cost of affinity: sessions
// held there do not survive a process restart and are invisible to any other
// process in a multi-instance deployment.
type store struct {
	cache  cache.Service
	ttl    time.Duration
	log    *logger.Logger
	mu     sync.Mutex
	local  map[string]fallbackEntry
}

func NewStore(cacheService cache.Service, ttl time.Duration, log *logger.Logger) Store {
	return &store{
		cache: cacheService,
		ttl:   ttl,
		log:   log,
		local: make(map[string]fallbackEntry),
	}
}

func key(phone string) string {
	return "ticketconcierge:session:" + phone
}

func (s *store) Get(ctx context.Context, phone string) Session {
	var sess Session
	err := s.cache.Get(ctx, key(phone), &sess)
	if err == nil {
		return sess
	}
	if err != cache.ErrCacheMiss {
		s.log.LogSessionFallback(ctx, "get", err)
		return s.getLocal(phone)
	}
	return idle()
}

func (s *store) Update(ctx context.Context, phone string, state State, patch Data) error {
	current := s.Get(ctx, phone)
	updated := Session{State: state, Data: current.Data.merge(patch)}

	if err := s.cache.Set(ctx, key(phone), updated, s.ttl); err != nil {
		s.log.LogSessionFallback(ctx, "update", err)
		s.setLocal(phone, updated)
		return nil
	}
	return nil
}

func (s *store) Clear(ctx context.Context, phone string) error {
	cleared := idle()
	if err := s.cache.Set(ctx, key(phone), cleared, s.ttl); err != nil {
		s.log.LogSessionFallback(ctx, "clear", err)
		s.setLocal(phone, cleared)
		return nil
	}
	return nil
}

func (s *store) getLocal(phone string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	entry, ok := s.local[phone]
	if !ok || time.Now().After(entry.expiresAt) {
		return idle()
	}
	return entry.session
}

func (s *store) setLocal(phone string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.local[phone] = fallbackEntry{session: sess, expiresAt: time.Now().Add(s.ttl)}
}

// sweepLocked purges expired entries lazily, on every access, per spec §4.2.
// Caller must hold s.mu.
func (s *store) sweepLocked() {
	now := time.Now()
	for k, v := range s.local {
		if now.After(v.expiresAt) {
			delete(s.local, k)
		}
	}
}
