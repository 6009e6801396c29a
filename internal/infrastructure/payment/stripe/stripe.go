// Package stripe adapts Stripe PaymentIntents and signed webhooks to the payment provider port.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripego "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/envelope"
)

const Name = "stripe"

var ErrMissingKeys = errors.New("stripe: secret key and webhook secret are required")

// Provider holds its own API client; the package-level stripe.Key is never set.
type Provider struct {
	api           *client.API
	webhookSecret string
}

var _ apppay.Provider = (*Provider)(nil)

func New(secretKey, webhookSecret string) (*Provider, error) {
	if secretKey == "" || webhookSecret == "" {
		return nil, ErrMissingKeys
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Provider{api: api, webhookSecret: webhookSecret}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) CreateIntent(ctx context.Context, req apppay.IntentRequest) (apppay.Intent, error) {
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(req.AmountCents),
		Currency: stripego.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return apppay.Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return apppay.Intent{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *Provider) RetrieveIntent(ctx context.Context, ref string) (apppay.Intent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return apppay.Intent{}, fmt.Errorf("stripe: retrieve payment intent %s: %w", ref, err)
	}
	return apppay.Intent{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *Provider) SignatureHeader() string { return "Stripe-Signature" }

func (p *Provider) ParseWebhook(payload []byte, signature string) (apppay.Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return apppay.Notification{}, fmt.Errorf("%w: %w", apppay.ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return apppay.Notification{}, fmt.Errorf("%w: missing data", apppay.ErrMalformedEvent)
	}

	var obj envelope.Object
	if envelope.OutcomeFor(string(event.Type)) != "" {
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return apppay.Notification{}, fmt.Errorf("%w: %w", apppay.ErrMalformedEvent, err)
		}
		obj = envelope.Object{ID: pi.ID, Amount: pi.Amount, Currency: string(pi.Currency), Metadata: pi.Metadata}
	}
	return envelope.Normalize(event.ID, string(event.Type), obj)
}
