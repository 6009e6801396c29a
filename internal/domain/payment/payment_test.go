package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransitions(t *testing.T) {
	r := NewRecord("pay-1", "ord-1", "stripe", "pi_1", 1299, "USD")
	assert.Equal(t, StatusPending, r.Status)

	require.NoError(t, r.Fail())
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Fail(), ErrInvalidStateTransition)

	require.NoError(t, r.Capture())
	assert.Equal(t, StatusCaptured, r.Status)

	assert.ErrorIs(t, r.Capture(), ErrInvalidStateTransition)
	assert.ErrorIs(t, r.Fail(), ErrInvalidStateTransition)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"PAYMENT_PENDING", "CAPTURED", "FAILED"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}
	_, err := ParseStatus("pending")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
