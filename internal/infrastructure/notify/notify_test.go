package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notification"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func receipt() notification.Receipt {
	return notification.Receipt{
		OrderID:    "o1",
		UserID:     "u1",
		TotalCents: 2574,
		Currency:   "USD",
		Items:      []notification.ReceiptItem{{ProductID: "tee", Name: "Tee", Quantity: 2}},
		PaidAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotifierWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifier(w)

	require.NoError(t, n.SendPaymentReceipt(context.Background(), receipt()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte("payment.receipt")}}, msg.Headers)

	var got notification.Receipt
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, receipt(), got)
}

func TestKafkaNotifierWrapsWriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	n := NewKafkaNotifier(&fakeWriter{err: boom})

	err := n.SendPaymentReceipt(context.Background(), receipt())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ChannelKafka, n.Channel())
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter("payment.receipts", "localhost:9092")
	assert.Equal(t, "payment.receipts", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.Equal(t, ChannelLog, n.Channel())
	assert.NoError(t, n.SendPaymentReceipt(context.Background(), receipt()))
}
