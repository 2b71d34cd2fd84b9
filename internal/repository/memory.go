package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"azebot/internal/models"
)

// MemoryStats counts calls against a MemoryStore.
type MemoryStats struct {
	ArticleReads  int
	ArticleWrites int
	Credits       int
	Conflicts     int
}

// MemoryStore keeps articles, transactions and payments in process memory.
// It implements every repository interface and is used for tests and the
// memory persister.
type MemoryStore struct {
	mu           sync.Mutex
	articles     map[string]models.Article
	transactions map[string]models.Transaction
	order        []string
	payments     []models.PaymentRecord
	stats        MemoryStats
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:     make(map[string]models.Article),
		transactions: make(map[string]models.Transaction),
		now:          time.Now,
	}
}

// SetClock replaces the timestamp source used for created_at and updated_at.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Stats returns a snapshot of the call counters.
func (m *MemoryStore) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *MemoryStore) GetArticle(_ context.Context, id string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ArticleReads++
	a, ok := m.articles[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) CompareAndSetPaymentStatus(_ context.Context, id string, expected models.PaymentStatus, fields models.PaymentFields) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casArticle(id, expected, fields), nil
}

func (m *MemoryStore) casArticle(id string, expected models.PaymentStatus, fields models.PaymentFields) bool {
	a, ok := m.articles[id]
	if !ok || a.PaymentStatus != expected {
		m.stats.Conflicts++
		return false
	}
	date, amount, method, txID := fields.PaymentDate, fields.PaymentAmount, fields.PaymentMethod, fields.TransactionID
	a.PaymentStatus = models.PaymentStatusPaid
	a.PaymentDate = &date
	a.PaymentAmount = &amount
	a.PaymentMethod = &method
	a.CreditedTransactionID = &txID
	a.UpdatedAt = m.now()
	m.articles[id] = a
	m.stats.ArticleWrites++
	return true
}

func (m *MemoryStore) UpsertArticle(_ context.Context, article *models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	a, ok := m.articles[article.ID]
	if !ok {
		a = *article
		if a.PaymentStatus == "" {
			a.PaymentStatus = models.PaymentStatusPending
		}
		a.CreatedAt = now
	} else {
		a.Title = article.Title
		a.Category = article.Category
		a.Price = article.Price
	}
	a.UpdatedAt = now
	m.articles[article.ID] = a
	return nil
}

func (m *MemoryStore) CreateTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[t.TransactionID]; ok {
		return ErrDuplicateTransaction
	}
	now := m.now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.transactions[t.TransactionID] = *t
	m.order = append(m.order, t.TransactionID)
	return nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, transactionID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryStore) LatestOpenTransaction(_ context.Context, articleID, userID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		t := m.transactions[m.order[i]]
		if t.ArticleID == articleID && t.UserID == userID && !t.Status.IsFailure() {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) TransitionStatus(_ context.Context, transactionID string, to models.TransactionStatus, fields models.TransitionFields) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok || !t.Status.CanTransition(to) {
		return false, nil
	}
	t.Status = to
	if fields.GatewayRef != "" {
		t.GatewayRef = fields.GatewayRef
	}
	if fields.Mode != "" {
		t.Mode = fields.Mode
	}
	if fields.CheckoutURL != "" {
		t.CheckoutURL = fields.CheckoutURL
	}
	t.UpdatedAt = m.now()
	m.transactions[transactionID] = t
	return true, nil
}

func (m *MemoryStore) ListStaleTransactions(_ context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, id := range m.order {
		t := m.transactions[id]
		if t.Status == status && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CheckedAt, out[j].CheckedAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkChecked(_ context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return nil
	}
	now := m.now()
	t.CheckedAt = &now
	m.transactions[transactionID] = t
	return nil
}

func (m *MemoryStore) ListTransactionsByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for i := len(m.order) - 1; i >= 0; i-- {
		if t := m.transactions[m.order[i]]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListPaymentsByUser(_ context.Context, userID string) ([]models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentRecord
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out, nil
}

// Credit applies the same all-or-nothing rules as the postgres crediter.
func (m *MemoryStore) Credit(_ context.Context, credit models.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[credit.TransactionID]
	if !ok || t.Credited || t.Status.IsFailure() {
		m.stats.Conflicts++
		return ErrWriteConflict
	}
	if !m.casArticle(credit.ArticleID, models.PaymentStatusPending, credit.PaymentFields()) {
		return ErrWriteConflict
	}
	t.Status = models.StatusApproved
	t.Credited = true
	t.UpdatedAt = m.now()
	m.transactions[t.TransactionID] = t
	m.payments = append(m.payments, *credit.Record())
	m.stats.Credits++
	return nil
}
