// Package notify delivers payment receipts to Kafka or, without brokers, to the log.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notification"
)

const (
	ChannelKafka     = "kafka"
	eventTypeReceipt = "payment.receipt"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	writer MessageWriter
}

var _ notification.Notifier = (*KafkaNotifier)(nil)

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaNotifier(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

func (n *KafkaNotifier) Channel() string { return ChannelKafka }

// SendPaymentReceipt keys the message by order id so receipts of one order stay on one partition.
func (n *KafkaNotifier) SendPaymentReceipt(ctx context.Context, r notification.Receipt) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("notify: marshal receipt: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventTypeReceipt)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: write receipt %s: %w", r.OrderID, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error { return n.writer.Close() }
