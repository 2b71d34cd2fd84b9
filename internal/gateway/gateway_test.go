package gateway

import (
	"context"
	"net/url"
	"testing"

	"azebot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]models.TransactionStatus{
		"approved":    models.StatusApproved,
		"Transferred": models.StatusApproved,
		"pending":     models.StatusPending,
		"created":     models.StatusPending,
		"declined":    models.StatusDeclined,
		"canceled":    models.StatusDeclined,
		"expired":     models.StatusExpired,
		"refunded":    models.StatusPending,
		"":            models.StatusPending,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), raw)
	}
}

func TestRedirectURL(t *testing.T) {
	got, err := RedirectURL("https://azebot.example/payment/success?lang=fr", "A1", "T1")
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "A1", u.Query().Get("article_id"))
	assert.Equal(t, "T1", u.Query().Get("transaction_id"))
	assert.Equal(t, "fr", u.Query().Get("lang"))
}

func TestFake_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	checkout, err := f.CreateCheckout(ctx, CheckoutRequest{Reference: "T1", Amount: 500})
	require.NoError(t, err)

	ref, ok := f.RefFor("T1")
	require.True(t, ok)
	assert.Equal(t, checkout.GatewayRef, ref)

	status, err := f.GetTransaction(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status.Status)

	f.Hide(ref)
	_, err = f.GetTransaction(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)

	f.SetStatus(ref, "approved", models.ModeMobileMoney)
	status, err = f.GetTransaction(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, status.Status)
	assert.Equal(t, models.ModeMobileMoney, status.Mode)
	assert.Equal(t, 1, f.Creates())
	assert.Equal(t, 3, f.Lookups())
}

func TestFake_AutoApproveRedirectsToCallback(t *testing.T) {
	f := NewFake()
	f.AutoApprove = true
	checkout, err := f.CreateCheckout(context.Background(), CheckoutRequest{Reference: "T1", CallbackURL: "http://localhost/payment/success?article_id=A1"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/payment/success?article_id=A1", checkout.URL)

	status, err := f.GetTransaction(context.Background(), checkout.GatewayRef)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, status.Status)
}
