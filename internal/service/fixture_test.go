package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"azebot/internal/gateway"
	"azebot/internal/models"
	"azebot/internal/repository"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *repository.MemoryStore
	gw         *gateway.Fake
	payments   PaymentService
	resolver   StatusResolver
	reconciler AccessReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	gw := gateway.NewFake()
	logger := discardLogger()
	resolver := NewStatusResolver(store, gw, logger)
	return &fixture{
		store: store,
		gw:    gw,
		payments: NewPaymentService(store, store, gw, PaymentConfig{
			Currency:   "XOF",
			SuccessURL: "https://azebot.example/payment/success",
			CancelURL:  "https://azebot.example/payment/cancel",
		}, logger),
		resolver:   resolver,
		reconciler: NewAccessReconciler(store, store, store, resolver, logger),
	}
}

func (f *fixture) article(t *testing.T, id string, price int64) {
	t.Helper()
	require.NoError(t, f.store.UpsertArticle(context.Background(), &models.Article{ID: id, Title: id, Price: price}))
}

// pay starts a checkout and returns the transaction id and gateway reference.
func (f *fixture) pay(t *testing.T, articleID, userID string) (string, string) {
	t.Helper()
	resp, err := f.payments.CreatePayment(context.Background(), CreatePaymentParams{ArticleID: articleID, UserID: userID})
	require.NoError(t, err)
	ref, ok := f.gw.RefFor(resp.TransactionID)
	require.True(t, ok)
	return resp.TransactionID, ref
}
