package simulated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/envelope"
)

func TestIntentIsDeterministic(t *testing.T) {
	p, err := New("whsec_test")
	require.NoError(t, err)

	a, err := p.CreateIntent(context.Background(), apppay.IntentRequest{OrderID: "o1", AmountCents: 100})
	require.NoError(t, err)
	b, err := p.CreateIntent(context.Background(), apppay.IntentRequest{OrderID: "o1", AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "sim_pi_o1", a.Ref)

	got, err := p.RetrieveIntent(context.Background(), a.Ref)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestParseWebhook(t *testing.T) {
	p, err := New("whsec_test")
	require.NoError(t, err)
	payload, err := envelope.Encode("evt_1", envelope.TypeSucceeded, "sim_pi_o1", "o1")
	require.NoError(t, err)

	n, err := p.ParseWebhook(payload, p.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, dompay.OutcomeSucceeded, n.Outcome)
	assert.Equal(t, "sim_pi_o1", n.ProviderRef)

	other, err := New("whsec_other")
	require.NoError(t, err)
	_, err = p.ParseWebhook(payload, other.Sign(payload))
	assert.ErrorIs(t, err, apppay.ErrInvalidSignature)

	_, err = p.ParseWebhook(payload, "")
	assert.ErrorIs(t, err, apppay.ErrInvalidSignature)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = 'X'
	_, err = p.ParseWebhook(tampered, p.Sign(payload))
	assert.ErrorIs(t, err, apppay.ErrInvalidSignature)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
