// Package events publishes basket and checkout activity to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicBasket   = "basket_events"
	TopicCheckout = "checkout_events"

	publishTimeout = 5 * time.Second

	// one event per write; flush without waiting for a batch to fill
	batchTimeout = 5 * time.Millisecond
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              1,
			BatchTimeout:           batchTimeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           publishTimeout,
		},
	}
}

func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) PublishEvent(context.Context, string, string, any) error {
	return nil
}

func (Nop) Close() error {
	return nil
}

type BasketEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	ProductID int64     `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity"`
	Total     string    `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckoutEvent struct {
	Type       string    `json:"type"`
	CheckoutID string    `json:"checkout_id"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	Total      string    `json:"total"`
	Timestamp  time.Time `json:"timestamp"`
}
