// Package events publishes committed order changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jayjaytrn/freshflow/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("kafka disabled")

const publishTimeout = 5 * time.Second

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	Writer  MessageWriter
	Logger  *zap.SugaredLogger
	Timeout time.Duration
	// Observe, when set, is called after every publish attempt.
	Observe func(eventType string, err error)
}

// ParseBrokers splits a CSV broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaPublisher writes to topic on brokersCSV. Messages are keyed by order
// id so one order's events stay on one partition in commit order.
func NewKafkaPublisher(brokersCSV, topic string, logger *zap.SugaredLogger) (*Publisher, error) {
	brokers := ParseBrokers(brokersCSV)
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Publisher{Writer: w, Logger: logger, Timeout: publishTimeout}, nil
}

// NewEvent renders the envelope published for an order change.
func NewEvent(eventType string, order models.Order) models.OrderEvent {
	payload := map[string]any{
		"ownerId":    order.OwnerID,
		"status":     order.Status,
		"totalPrice": order.TotalPrice.StringFixed(2),
		"version":    order.Version,
	}
	if order.ProviderTransactionID != "" {
		payload["provider"] = order.PaymentProvider
		payload["providerTransactionId"] = order.ProviderTransactionID
		payload["providerStatus"] = order.ProviderStatus
	}
	return models.OrderEvent{
		EventID:   uuid.NewString(),
		OrderID:   order.ID,
		Type:      eventType,
		CreatedAt: order.UpdatedAt,
		Payload:   payload,
	}
}

func (p *Publisher) Publish(ctx context.Context, event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

// OrderChanged publishes after a commit. The order is already stored, so a
// failed publish is logged rather than returned.
func (p *Publisher) OrderChanged(ctx context.Context, eventType string, order models.Order) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = publishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	event := NewEvent(eventType, order)
	err := p.Publish(ctx, event)
	if p.Observe != nil {
		p.Observe(eventType, err)
	}
	if err != nil {
		p.Logger.Warnw("failed to publish order event", "order_id", order.ID, "type", eventType, "error", err)
		return
	}
	p.Logger.Debugw("order event published", "order_id", order.ID, "type", eventType, "event_id", event.EventID)
}

func (p *Publisher) Close() error {
	return p.Writer.Close()
}
