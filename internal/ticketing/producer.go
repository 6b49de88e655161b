package ticketing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Publisher enqueues delivery jobs. Callers never block on provider I/O —
// CompleteBooking's caller only needs the enqueue to succeed, not the
// eventual send (spec §4.7 step 5: "never inside the transaction").
type Publisher interface {
	PublishConfirmation(ctx context.Context, job DeliveryJob) error
	PublishTicketImage(ctx context.Context, job DeliveryJob) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks sarama.RequiredAcks
	RetryMax     int
}

func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		Topic:        "ticket-deliveries",
		RequiredAcks: sarama.WaitForLocal,
		RetryMax:     3,
	}
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(cfg ProducerConfig) (Publisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.RequiredAcks = cfg.RequiredAcks
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket delivery producer: %w", err)
	}
	return &kafkaPublisher{producer: producer, topic: cfg.Topic}, nil
}

func (p *kafkaPublisher) PublishConfirmation(ctx context.Context, job DeliveryJob) error {
	job.Kind = JobConfirmationText
	return p.publish(job)
}

func (p *kafkaPublisher) PublishTicketImage(ctx context.Context, job DeliveryJob) error {
	job.Kind = JobTicketImage
	return p.publish(job)
}

func (p *kafkaPublisher) publish(job DeliveryJob) error {
	job.PublishedAt = time.Now()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery job: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(job.BookingID),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}
