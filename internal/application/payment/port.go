package payment

import (
	"context"
	"errors"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

var (
	// ErrInvalidSignature means the webhook envelope could not be authenticated.
	ErrInvalidSignature = errors.New("payment: webhook signature invalid")
	ErrMalformedEvent   = errors.New("payment: malformed webhook event")
)

type IntentRequest struct {
	OrderID        string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// Intent is the provider-side payment handle handed to the client.
type Intent struct {
	Ref          string
	ClientSecret string
}

// Notification is a verified webhook normalized to the fields settlement needs.
// An empty Outcome means the event type carries no settlement decision.
type Notification struct {
	EventID     string
	Type        string
	ProviderRef string
	OrderID     string
	Outcome     dompay.Outcome
	// AmountCents and Currency are what the provider reports it settled; zero values mean not reported.
	AmountCents int64
	Currency    string
}

// Provider is the outbound port to a payment provider. One implementation is selected at startup.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, ref string) (Intent, error)
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// ParseWebhook authenticates payload and normalizes it. It must fail closed.
	ParseWebhook(payload []byte, signature string) (Notification, error)
}
