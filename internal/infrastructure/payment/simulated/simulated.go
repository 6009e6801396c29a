// Package simulated is the provider-absent payment mode. Intent references are derived from the order id,
// so repeated calls are idempotent without any round trip. Webhooks use the Stripe signature scheme.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v80/webhook"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/envelope"
)

const (
	Name      = "simulated"
	refPrefix = "sim_pi_"
)

var ErrMissingSecret = errors.New("simulated: webhook secret is required")

type Provider struct {
	secret string
}

var _ apppay.Provider = (*Provider)(nil)

func New(webhookSecret string) (*Provider, error) {
	if webhookSecret == "" {
		return nil, ErrMissingSecret
	}
	return &Provider{secret: webhookSecret}, nil
}

func (p *Provider) Name() string { return Name }

// Ref is the deterministic intent reference for an order.
func Ref(orderID string) string { return refPrefix + orderID }

func (p *Provider) CreateIntent(ctx context.Context, req apppay.IntentRequest) (apppay.Intent, error) {
	if err := ctx.Err(); err != nil {
		return apppay.Intent{}, err
	}
	if req.OrderID == "" {
		return apppay.Intent{}, fmt.Errorf("simulated: order id is required")
	}
	return intentFor(Ref(req.OrderID)), nil
}

func (p *Provider) RetrieveIntent(ctx context.Context, ref string) (apppay.Intent, error) {
	if err := ctx.Err(); err != nil {
		return apppay.Intent{}, err
	}
	return intentFor(ref), nil
}

func (p *Provider) SignatureHeader() string { return "Stripe-Signature" }

func (p *Provider) ParseWebhook(payload []byte, signature string) (apppay.Notification, error) {
	if err := webhook.ValidatePayload(payload, signature, p.secret); err != nil {
		return apppay.Notification{}, fmt.Errorf("%w: %w", apppay.ErrInvalidSignature, err)
	}
	return envelope.Decode(payload)
}

// Sign returns the signature header value for payload, as a provider would send it.
func (p *Provider) Sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    p.secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func intentFor(ref string) apppay.Intent {
	return apppay.Intent{Ref: ref, ClientSecret: ref + "_secret_simulated"}
}
