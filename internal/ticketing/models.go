// Package ticketing fans out best-effort ticket delivery after a booking
// is paid: N parallel ticket-image sends plus one confirmation text,
// modeled as a Kafka producer/consumer pair so delivery happens off the
// request path and a single slow or failing delivery never blocks or
// fails the others (spec §4.8).
package ticketing

import "time"

// JobKind distinguishes the two delivery kinds the consumer fans in on the
// same topic.
type JobKind string

const (
	JobConfirmationText JobKind = "CONFIRMATION_TEXT"
	JobTicketImage      JobKind = "TICKET_IMAGE"
)

// DeliveryJob is the payload carried on the Kafka topic. One job is
// published per confirmation text, and one per ticket image.
type DeliveryJob struct {
	Kind JobKind `json:"kind"`

	Phone     string `json:"phone"`
	BookingID string `json:"booking_id"`

	// Confirmation text fields.
	EventTitle string   `json:"event_title,omitempty"`
	Venue      string   `json:"venue,omitempty"`
	StartTime  string   `json:"start_time,omitempty"`
	TierName   string   `json:"tier_name,omitempty"`
	Quantity   int      `json:"quantity,omitempty"`
	TotalKES   int64    `json:"total_kes,omitempty"`
	Codes      []string `json:"codes,omitempty"`

	// Ticket image fields.
	TicketCode string `json:"ticket_code,omitempty"`
	Caption    string `json:"caption,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}
