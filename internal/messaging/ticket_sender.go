package messaging

import (
	"context"

	"ticketconcierge/internal/ticketcode"
)

// TicketSenderAdapter satisfies the Ticket Issuer's narrow Sender shape
// (SendText, SendTicketImage(code)) by rendering the code to a PNG and
// routing it through the ordinary upload-then-send media flow (spec §4.8).
// It exists so internal/ticketing never needs to import this package.
type TicketSenderAdapter struct {
	client Client
}

func NewTicketSenderAdapter(client Client) *TicketSenderAdapter {
	return &TicketSenderAdapter{client: client}
}

func (a *TicketSenderAdapter) SendText(ctx context.Context, phone, body string) error {
	return a.client.SendText(ctx, phone, body)
}

func (a *TicketSenderAdapter) SendTicketImage(ctx context.Context, phone, code, caption string) error {
	mediaID, err := a.client.UploadMedia(ctx, ticketcode.RenderPNG(code), "image/png")
	if err != nil {
		return err
	}
	return a.client.SendTicketImage(ctx, phone, mediaID, caption)
}
