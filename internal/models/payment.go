package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is the history row written in the same commit that unlocks an article.
type PaymentRecord struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	ArticleID     string    `json:"article_id" db:"article_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Amount        int64     `json:"amount" db:"amount"`
	Currency      string    `json:"currency" db:"currency"`
	Method        string    `json:"method" db:"method"`
	PaidAt        time.Time `json:"paid_at" db:"paid_at"`
}

// Credit describes one approved transaction being applied to its article.
type Credit struct {
	TransactionID string
	ArticleID     string
	UserID        string
	Amount        int64
	Currency      string
	Method        string
	PaidAt        time.Time
}

func (c Credit) PaymentFields() PaymentFields {
	return PaymentFields{
		PaymentDate:   c.PaidAt,
		PaymentAmount: c.Amount,
		PaymentMethod: c.Method,
		TransactionID: c.TransactionID,
	}
}

func (c Credit) Record() *PaymentRecord {
	return &PaymentRecord{
		ID:            uuid.New(),
		TransactionID: c.TransactionID,
		ArticleID:     c.ArticleID,
		UserID:        c.UserID,
		Amount:        c.Amount,
		Currency:      c.Currency,
		Method:        c.Method,
		PaidAt:        c.PaidAt,
	}
}
