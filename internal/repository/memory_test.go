package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"azebot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithArticle(t *testing.T, price int64) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	require.NoError(t, m.UpsertArticle(context.Background(), &models.Article{ID: "A1", Title: "EURUSD weekly", Price: price}))
	return m
}

func newTx(id, article, user string) *models.Transaction {
	return &models.Transaction{
		TransactionID:    id,
		ArticleID:        article,
		UserID:           user,
		AmountMinorUnits: 500,
		Currency:         "XOF",
		Status:           models.StatusCreated,
	}
}

func TestMemoryStore_TransitionStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateTransaction(ctx, newTx("T1", "A1", "U1")))
	assert.ErrorIs(t, m.CreateTransaction(ctx, newTx("T1", "A1", "U1")), ErrDuplicateTransaction)

	ok, err := m.TransitionStatus(ctx, "T1", models.StatusPending, models.TransitionFields{GatewayRef: "gw-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TransitionStatus(ctx, "T1", models.StatusDeclined, models.TransitionFields{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TransitionStatus(ctx, "T1", models.StatusApproved, models.TransitionFields{})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.GetTransaction(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, got.Status)
	assert.Equal(t, "gw-1", got.GatewayRef)
}

func TestMemoryStore_LatestOpenTransactionSkipsFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateTransaction(ctx, newTx("T1", "A1", "U1")))
	require.NoError(t, m.CreateTransaction(ctx, newTx("T2", "A1", "U1")))
	require.NoError(t, m.CreateTransaction(ctx, newTx("T3", "A1", "U2")))

	got, err := m.LatestOpenTransaction(ctx, "A1", "U1")
	require.NoError(t, err)
	assert.Equal(t, "T2", got.TransactionID)

	_, err = m.TransitionStatus(ctx, "T2", models.StatusExpired, models.TransitionFields{})
	require.NoError(t, err)

	got, err = m.LatestOpenTransaction(ctx, "A1", "U1")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.TransactionID)

	got, err = m.LatestOpenTransaction(ctx, "A2", "U1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_CreditIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := newStoreWithArticle(t, 500)
	require.NoError(t, m.CreateTransaction(ctx, newTx("T1", "A1", "U1")))

	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	credit := models.Credit{TransactionID: "T1", ArticleID: "A1", UserID: "U1", Amount: 500, Currency: "XOF", Method: "mobile_money", PaidAt: paidAt}
	require.NoError(t, m.Credit(ctx, credit))
	assert.ErrorIs(t, m.Credit(ctx, credit), ErrWriteConflict)

	a, err := m.GetArticle(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, a.PaymentStatus)
	assert.Equal(t, int64(500), *a.PaymentAmount)
	assert.Equal(t, "mobile_money", *a.PaymentMethod)
	assert.Equal(t, "T1", *a.CreditedTransactionID)
	assert.True(t, a.PaymentDate.Equal(paidAt))

	tx, err := m.GetTransaction(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
	assert.True(t, tx.Credited)

	payments, err := m.ListPaymentsByUser(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "T1", payments[0].TransactionID)
}

func TestMemoryStore_ConcurrentCreditsUnlockOnce(t *testing.T) {
	ctx := context.Background()
	m := newStoreWithArticle(t, 500)
	const n = 20
	for i := 0; i < n; i++ {
		tx := newTx(string(rune('a'+i)), "A1", "U1")
		require.NoError(t, m.CreateTransaction(ctx, tx))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := m.Credit(ctx, models.Credit{TransactionID: id, ArticleID: "A1", UserID: "U1", Amount: 500, PaidAt: time.Now()})
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, m.Stats().Credits)
	payments, err := m.ListPaymentsByUser(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestMemoryStore_CompareAndSetPaymentStatus(t *testing.T) {
	ctx := context.Background()
	m := newStoreWithArticle(t, 500)
	fields := models.PaymentFields{PaymentDate: time.Now(), PaymentAmount: 500, PaymentMethod: "card", TransactionID: "T1"}

	ok, err := m.CompareAndSetPaymentStatus(ctx, "A1", models.PaymentStatusPending, fields)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CompareAndSetPaymentStatus(ctx, "A1", models.PaymentStatusPending, fields)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CompareAndSetPaymentStatus(ctx, "missing", models.PaymentStatusPending, fields)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_UpsertKeepsPaymentFields(t *testing.T) {
	ctx := context.Background()
	m := newStoreWithArticle(t, 500)
	_, err := m.CompareAndSetPaymentStatus(ctx, "A1", models.PaymentStatusPending, models.PaymentFields{PaymentAmount: 500, TransactionID: "T1"})
	require.NoError(t, err)

	require.NoError(t, m.UpsertArticle(ctx, &models.Article{ID: "A1", Title: "renamed", Price: 700}))
	a, err := m.GetArticle(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", a.Title)
	assert.Equal(t, int64(700), a.Price)
	assert.True(t, a.IsPaid())
}

func TestMemoryStore_ListStaleTransactions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	m.SetClock(func() time.Time { return clock })

	for i, id := range []string{"T1", "T2", "T3"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, m.CreateTransaction(ctx, newTx(id, "A1", "U1")))
	}

	stale, err := m.ListStaleTransactions(ctx, models.StatusCreated, base.Add(90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "T1", stale[0].TransactionID)

	stale, err = m.ListStaleTransactions(ctx, models.StatusCreated, base.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestMemoryStore_ListStaleTransactionsPrefersLeastRecentlyChecked(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	m.SetClock(func() time.Time { return clock })
	for _, id := range []string{"T1", "T2", "T3"} {
		require.NoError(t, m.CreateTransaction(ctx, newTx(id, "A1", "U1")))
	}

	clock = base.Add(time.Minute)
	require.NoError(t, m.MarkChecked(ctx, "T2"))
	clock = base.Add(2 * time.Minute)
	require.NoError(t, m.MarkChecked(ctx, "T1"))
	require.NoError(t, m.MarkChecked(ctx, "missing"))

	stale, err := m.ListStaleTransactions(ctx, models.StatusCreated, base.Add(time.Hour), 10)
	require.NoError(t, err)
	ids := make([]string, len(stale))
	for i, tx := range stale {
		ids[i] = tx.TransactionID
	}
	assert.Equal(t, []string{"T3", "T2", "T1"}, ids)

	tx, _ := m.GetTransaction(ctx, "T1")
	require.NotNil(t, tx.CheckedAt)
	assert.Equal(t, base.Add(2*time.Minute), *tx.CheckedAt)
}
