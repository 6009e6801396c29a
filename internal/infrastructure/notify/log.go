package notify

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notification"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const ChannelLog = "log"

// LogNotifier writes receipts to the structured log; used when no Kafka brokers are configured.
type LogNotifier struct {
	log observability.Logger
}

var _ notification.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger observability.Logger) *LogNotifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogNotifier{log: logger.With(observability.F("component", "receipt_notifier"))}
}

func (n *LogNotifier) Channel() string { return ChannelLog }

func (n *LogNotifier) SendPaymentReceipt(ctx context.Context, r notification.Receipt) error {
	logctx.FromOr(ctx, n.log).Info("payment_receipt_sent",
		observability.F("order_id", r.OrderID),
		observability.F("user_id", r.UserID),
		observability.F("total_cents", r.TotalCents),
		observability.F("currency", r.Currency),
		observability.F("items", len(r.Items)),
	)
	return nil
}
