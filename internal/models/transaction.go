package models

import (
	"time"
)

type TransactionStatus string

const (
	StatusCreated  TransactionStatus = "created"
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusDeclined TransactionStatus = "declined"
	StatusExpired  TransactionStatus = "expired"

	// StatusUnknown is only ever returned by status resolution when the gateway
	// could not be reached. It is never persisted.
	StatusUnknown TransactionStatus = "unknown"
)

func (s TransactionStatus) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusPending:
		return 1
	case StatusApproved, StatusDeclined, StatusExpired:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether no further transitions are expected.
func (s TransactionStatus) IsTerminal() bool {
	return s.rank() == 2
}

// IsFailure reports whether s is a terminal negative outcome.
func (s TransactionStatus) IsFailure() bool {
	return s == StatusDeclined || s == StatusExpired
}

// CanTransition enforces created -> pending -> {approved | declined | expired}.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	if s.IsTerminal() || s.rank() < 0 || to.rank() < 0 {
		return false
	}
	return to.rank() > s.rank()
}

// StatusesBefore lists the persisted statuses a transaction may hold right
// before moving to `to`.
func StatusesBefore(to TransactionStatus) []TransactionStatus {
	var from []TransactionStatus
	for _, s := range []TransactionStatus{StatusCreated, StatusPending} {
		if s.CanTransition(to) {
			from = append(from, s)
		}
	}
	return from
}

type PaymentMode string

const (
	ModeCard        PaymentMode = "card"
	ModeMobileMoney PaymentMode = "mobile_money"
)

type Transaction struct {
	TransactionID    string            `json:"transaction_id" db:"transaction_id"`
	GatewayRef       string            `json:"gateway_ref" db:"gateway_ref"`
	ArticleID        string            `json:"article_id" db:"article_id"`
	UserID           string            `json:"user_id" db:"user_id"`
	AmountMinorUnits int64             `json:"amount" db:"amount"`
	Currency         string            `json:"currency" db:"currency"`
	Status           TransactionStatus `json:"status" db:"status"`
	Mode             PaymentMode       `json:"mode" db:"mode"`
	CheckoutURL      string            `json:"checkout_url" db:"checkout_url"`
	Credited         bool              `json:"credited" db:"credited"`
	CheckedAt        *time.Time        `json:"checked_at,omitempty" db:"checked_at"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// TransitionFields carries the optional metadata recorded alongside a status
// change. Empty values leave the stored column untouched.
type TransitionFields struct {
	GatewayRef  string
	Mode        PaymentMode
	CheckoutURL string
}
