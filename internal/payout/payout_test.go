package payout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxLifecycle(t *testing.T) {
	gw := NewSandbox()
	ctx := context.Background()
	req := Request{Reference: "withdrawal-1", Amount: decimal.NewFromInt(150), Currency: "inr"}

	created, err := gw.CreatePayout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)
	assert.NotEmpty(t, created.Destination)

	again, err := gw.CreatePayout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID, "same reference is idempotent")

	fetched, err := gw.GetPayout(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, fetched.Status)
	assert.NotNil(t, fetched.ArrivalDate)

	_, err = gw.GetPayout(ctx, "po_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMapStripeStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, mapStripeStatus(stripe.PayoutStatusPaid))
	assert.Equal(t, StatusFailed, mapStripeStatus(stripe.PayoutStatusFailed))
	assert.Equal(t, StatusCancelled, mapStripeStatus(stripe.PayoutStatusCanceled))
	assert.Equal(t, StatusPending, mapStripeStatus(stripe.PayoutStatusInTransit))
	assert.Equal(t, StatusPending, mapStripeStatus(stripe.PayoutStatusPending))
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(15050), toMinorUnits(decimal.RequireFromString("150.5")))
	assert.Equal(t, int64(100), toMinorUnits(decimal.NewFromInt(1)))
}

func TestFromStripe(t *testing.T) {
	p := fromStripe(&stripe.Payout{
		ID:          "po_123",
		Amount:      12345,
		Currency:    "inr",
		Status:      stripe.PayoutStatusFailed,
		Created:     1700000000,
		ArrivalDate: 1700086400,
		Metadata:    map[string]string{"reference": "withdrawal-9"},
	}, "")

	assert.Equal(t, "po_123", p.ID)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "123.45", p.Amount.String())
	assert.Equal(t, "withdrawal-9", p.Reference)
	require.NotNil(t, p.ArrivalDate)
}

func TestBankAccountLast4(t *testing.T) {
	assert.Equal(t, "6789", BankAccount{AccountNumber: "123456789"}.Last4())
	assert.Equal(t, "12", BankAccount{AccountNumber: "12"}.Last4())
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	_, _, err := ParseWebhook([]byte(`{"type":"payout.paid"}`), "t=1,v1=bad", "whsec_test")
	assert.Error(t, err)
}
