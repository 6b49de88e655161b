package ticketing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketconcierge/pkg/logger"
)

type recordingSender struct {
	texts  []string
	images []string
	fail   bool
}

func (s *recordingSender) SendText(ctx context.Context, phone, body string) error {
	if s.fail {
		return assert.AnError
	}
	s.texts = append(s.texts, body)
	return nil
}

func (s *recordingSender) SendTicketImage(ctx context.Context, phone, code, caption string) error {
	if s.fail {
		return assert.AnError
	}
	s.images = append(s.images, code)
	return nil
}

func TestDeliver_ConfirmationText(t *testing.T) {
	sender := &recordingSender{}
	c := &Consumer{sender: sender, log: logger.New()}

	job := DeliveryJob{
		Kind:       JobConfirmationText,
		Phone:      "254712345678",
		EventTitle: "Campus Fest",
		Codes:      []string{"AAAA-1111", "BBBB-2222"},
		Quantity:   2,
		TotalKES:   1000,
	}
	payload, err := jsonMarshal(job)
	require.NoError(t, err)

	c.deliver(context.Background(), payload)
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "Campus Fest")
	assert.Contains(t, sender.texts[0], "AAAA-1111")
}

func TestDeliver_TicketImage(t *testing.T) {
	sender := &recordingSender{}
	c := &Consumer{sender: sender, log: logger.New()}

	job := DeliveryJob{Kind: JobTicketImage, Phone: "254712345678", TicketCode: "AAAA-1111", Caption: "Campus Fest — General"}
	payload, err := jsonMarshal(job)
	require.NoError(t, err)

	c.deliver(context.Background(), payload)
	require.Len(t, sender.images, 1)
	assert.Equal(t, "AAAA-1111", sender.images[0])
}

func TestDeliver_SendFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{fail: true}
	c := &Consumer{sender: sender, log: logger.New()}

	job := DeliveryJob{Kind: JobConfirmationText, Phone: "254712345678"}
	payload, err := jsonMarshal(job)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		c.deliver(context.Background(), payload)
	})
	assert.Empty(t, sender.texts)
}

func jsonMarshal(job DeliveryJob) ([]byte, error) {
	return json.Marshal(job)
}
