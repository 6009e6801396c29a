package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

func TestDecode(t *testing.T) {
	cases := map[string]struct {
		payload string
		want    apppay.Notification
		wantErr error
	}{
		"succeeded": {
			payload: `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"orderId":"o1"}}}}`,
			want:    apppay.Notification{EventID: "evt_1", Type: TypeSucceeded, ProviderRef: "pi_1", OrderID: "o1", Outcome: dompay.OutcomeSucceeded},
		},
		"failed without metadata": {
			payload: `{"type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2"}}}`,
			want:    apppay.Notification{Type: TypeFailed, ProviderRef: "pi_2", Outcome: dompay.OutcomeFailed},
		},
		"unrelated type": {
			payload: `{"type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`,
			want:    apppay.Notification{Type: "charge.refunded", ProviderRef: "ch_1"},
		},
		"not json":          {payload: `nope`, wantErr: apppay.ErrMalformedEvent},
		"missing type":      {payload: `{"data":{"object":{"id":"pi_1"}}}`, wantErr: apppay.ErrMalformedEvent},
		"missing object id": {payload: `{"type":"payment_intent.succeeded","data":{"object":{}}}`, wantErr: apppay.ErrMalformedEvent},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(tc.payload))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	typ, err := TypeFor(dompay.OutcomeFailed)
	require.NoError(t, err)

	payload, err := Encode("evt_9", typ, "sim_pi_o9", "o9")
	require.NoError(t, err)

	n, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "sim_pi_o9", n.ProviderRef)
	assert.Equal(t, "o9", n.OrderID)
	assert.Equal(t, dompay.OutcomeFailed, n.Outcome)

	assert.Zero(t, n.AmountCents, "amount is optional")

	payload, err = EncodeObject("evt_10", TypeSucceeded, Object{ID: "sim_pi_o9", Amount: 2400, Currency: "eur"})
	require.NoError(t, err)
	n, err = Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(2400), n.AmountCents)
	assert.Equal(t, "EUR", n.Currency)

	_, err = TypeFor("maybe")
	assert.ErrorIs(t, err, apppay.ErrMalformedEvent)
}
