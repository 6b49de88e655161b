package ticketing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"ticketconcierge/pkg/logger"
)

// Sender is the outward messaging dependency the consumer needs. Declared
// locally (rather than importing internal/messaging) so this package only
// depends on the shape of what it actually calls.
type Sender interface {
	SendText(ctx context.Context, phone, body string) error
	SendTicketImage(ctx context.Context, phone, code, caption string) error
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
}

func DefaultConsumerConfig(brokers []string) ConsumerConfig {
	return ConsumerConfig{
		Brokers: brokers,
		GroupID: "ticket-delivery-workers",
		Topic:   "ticket-deliveries",
	}
}

// Consumer drains the delivery topic and performs the actual send. Every
// failure is logged and swallowed — nothing here ever blocks or fails the
// booking path that enqueued the job (spec §4.8).
type Consumer struct {
	group  sarama.ConsumerGroup
	topic  string
	sender Sender
	log    *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(cfg ConsumerConfig, sender Sender, log *logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket delivery consumer group: %w", err)
	}

	return &Consumer{
		group:  group,
		topic:  cfg.Topic,
		sender: sender,
		log:    log,
		done:   make(chan struct{}),
	}, nil
}

func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		defer close(c.done)
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.ErrorWithContext(ctx, "ticket delivery consumer group error", err, nil)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	var wg sync.WaitGroup
	for msg := range claim.Messages() {
		wg.Add(1)
		go func(msg *sarama.ConsumerMessage) {
			defer wg.Done()
			c.deliver(sess.Context(), msg.Value)
		}(msg)
		sess.MarkMessage(msg, "")
	}
	wg.Wait()
	return nil
}

func (c *Consumer) deliver(ctx context.Context, payload []byte) {
	var job DeliveryJob
	if err := json.Unmarshal(payload, &job); err != nil {
		c.log.ErrorWithContext(ctx, "malformed ticket delivery job", err, nil)
		return
	}

	var err error
	switch job.Kind {
	case JobConfirmationText:
		err = c.sender.SendText(ctx, job.Phone, confirmationBody(job))
	case JobTicketImage:
		err = c.sender.SendTicketImage(ctx, job.Phone, job.TicketCode, job.Caption)
	default:
		err = fmt.Errorf("unknown delivery job kind %q", job.Kind)
	}
	if err != nil {
		c.log.ErrorWithContext(ctx, "ticket delivery failed", err, map[string]interface{}{
			"booking_id": job.BookingID,
			"kind":       string(job.Kind),
		})
	}
}

func confirmationBody(job DeliveryJob) string {
	body := fmt.Sprintf(
		"Payment confirmed!\n%s\n%s\n%s\nTier: %s x%d\nTotal: KES %d\n\nYour codes:\n",
		job.EventTitle, job.StartTime, job.Venue, job.TierName, job.Quantity, job.TotalKES,
	)
	for _, code := range job.Codes {
		body += code + "\n"
	}
	return body
}
