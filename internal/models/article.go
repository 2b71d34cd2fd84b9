package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type Category string

const (
	CategoryForex    Category = "forex"
	CategoryFootball Category = "football"
)

// Article is owned by content authoring; only the payment fields are written here.
type Article struct {
	ID                    string        `json:"id" db:"id"`
	Title                 string        `json:"title" db:"title"`
	Category              Category      `json:"category" db:"category"`
	Price                 int64         `json:"price" db:"price"`
	PaymentStatus         PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentDate           *time.Time    `json:"payment_date,omitempty" db:"payment_date"`
	PaymentAmount         *int64        `json:"payment_amount,omitempty" db:"payment_amount"`
	PaymentMethod         *string       `json:"payment_method,omitempty" db:"payment_method"`
	CreditedTransactionID *string       `json:"credited_transaction_id,omitempty" db:"credited_transaction_id"`
	CreatedAt             time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at" db:"updated_at"`
}

func (a *Article) IsFree() bool {
	return a.Price == 0
}

func (a *Article) IsPaid() bool {
	return a.PaymentStatus == PaymentStatusPaid
}

// Unlocked is the stored half of the access grant: free or already paid.
func (a *Article) Unlocked() bool {
	return a.IsFree() || a.IsPaid()
}

// PaymentFields are the values written by the single pending -> paid transition.
type PaymentFields struct {
	PaymentDate   time.Time
	PaymentAmount int64
	PaymentMethod string
	TransactionID string
}
