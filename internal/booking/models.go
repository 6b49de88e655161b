// Package booking implements the Booking Engine (spec §4.7): the
// consistency heart of the system — atomic creation, idempotent completion,
// and cancellation of ticket purchases.
package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status is the booking's lifecycle state.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusCancelled       Status = "CANCELLED"
	// StatusExpired is a supplemental terminal status. No code path in this
	// package assigns it: the expiry sweeper only reports stale bookings, so
	// a booking still eligible for completion can always receive a late,
	// honorable webhook.
	StatusExpired Status = "EXPIRED"
)

// PendingEligible is the set of statuses CompleteBooking will act on.
func (s Status) PendingEligible() bool {
	return s == StatusPending || s == StatusAwaitingPayment
}

type PaymentMethod string

const (
	PaymentMethodMPESA PaymentMethod = "MPESA"
	PaymentMethodCard  PaymentMethod = "CARD"
)

// Booking is a commitment by one user to purchase N tickets of one tier.
type Booking struct {
	ID                 uuid.UUID     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID             uuid.UUID     `json:"user_id" gorm:"not null;index;type:uuid"`
	TierID             uuid.UUID     `json:"tier_id" gorm:"not null;index;type:uuid"`
	Quantity           int           `json:"quantity" gorm:"not null"`
	TotalAmountKES     int64         `json:"total_amount_kes" gorm:"not null"`
	Status             Status        `json:"status" gorm:"not null;index"`
	PaymentMethod      PaymentMethod `json:"payment_method" gorm:"not null"`
	PaymentPhoneNumber string        `json:"payment_phone_number"`
	PaymentReference   string        `json:"payment_reference"`
	ExpiryTime         time.Time     `json:"expiry_time" gorm:"not null"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Ticket is created only when its parent booking transitions to PAID.
type Ticket struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BookingID  uuid.UUID `json:"booking_id" gorm:"not null;index;type:uuid"`
	UniqueCode string    `json:"unique_code" gorm:"uniqueIndex;not null"`
	IsRedeemed bool      `json:"is_redeemed" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
}
