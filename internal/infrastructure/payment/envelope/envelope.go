// Package envelope decodes the provider event envelope shared by the Stripe and simulated providers:
// {"id", "type", "data": {"object": {"id", "metadata": {"orderId"}}}}.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

const (
	TypeSucceeded = "payment_intent.succeeded"
	TypeFailed    = "payment_intent.payment_failed"
)

type Object struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount,omitempty"`
	Currency string            `json:"currency,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Event struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Data struct {
		Object Object `json:"object"`
	} `json:"data"`
}

// OutcomeFor maps an event type to a settlement outcome; other types map to "".
func OutcomeFor(eventType string) dompay.Outcome {
	switch eventType {
	case TypeSucceeded:
		return dompay.OutcomeSucceeded
	case TypeFailed:
		return dompay.OutcomeFailed
	default:
		return ""
	}
}

func Decode(payload []byte) (apppay.Notification, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return apppay.Notification{}, fmt.Errorf("%w: %w", apppay.ErrMalformedEvent, err)
	}
	return Normalize(ev.ID, ev.Type, ev.Data.Object)
}

func Normalize(eventID, eventType string, obj Object) (apppay.Notification, error) {
	if eventType == "" {
		return apppay.Notification{}, fmt.Errorf("%w: missing type", apppay.ErrMalformedEvent)
	}
	outcome := OutcomeFor(eventType)
	if outcome != "" && obj.ID == "" {
		return apppay.Notification{}, fmt.Errorf("%w: missing object id", apppay.ErrMalformedEvent)
	}
	return apppay.Notification{
		EventID:     eventID,
		Type:        eventType,
		ProviderRef: obj.ID,
		OrderID:     obj.Metadata["orderId"],
		Outcome:     outcome,
		AmountCents: obj.Amount,
		Currency:    strings.ToUpper(obj.Currency),
	}, nil
}

// Encode builds an envelope for ref; used by the simulated trigger and tests.
func Encode(eventID, eventType, ref, orderID string) ([]byte, error) {
	return EncodeObject(eventID, eventType, Object{ID: ref, Metadata: map[string]string{"orderId": orderID}})
}

// EncodeObject is Encode with a caller-built object, e.g. one carrying the settled amount.
func EncodeObject(eventID, eventType string, obj Object) ([]byte, error) {
	var ev Event
	ev.ID = eventID
	ev.Type = eventType
	ev.Data.Object = obj
	return json.Marshal(ev)
}

// TypeFor is the inverse of OutcomeFor.
func TypeFor(outcome dompay.Outcome) (string, error) {
	switch outcome {
	case dompay.OutcomeSucceeded:
		return TypeSucceeded, nil
	case dompay.OutcomeFailed:
		return TypeFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown outcome %q", apppay.ErrMalformedEvent, outcome)
	}
}
