package repository

import (
	"context"
	"errors"
	"time"

	"azebot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrWriteConflict means a conditional write lost: the row no longer held
	// the expected value. Callers re-read and decide.
	ErrWriteConflict = errors.New("conditional write conflict")

	ErrDuplicateTransaction = errors.New("transaction already exists")
)

type ArticleRepository interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	CompareAndSetPaymentStatus(ctx context.Context, id string, expected models.PaymentStatus, fields models.PaymentFields) (bool, error)
	UpsertArticle(ctx context.Context, article *models.Article) error
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	LatestOpenTransaction(ctx context.Context, articleID, userID string) (*models.Transaction, error)
	TransitionStatus(ctx context.Context, transactionID string, to models.TransactionStatus, fields models.TransitionFields) (bool, error)
	ListStaleTransactions(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.Transaction, error)
	// MarkChecked records that the sweeper looked at the transaction.
	MarkChecked(ctx context.Context, transactionID string) error
	ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error)
}

type PaymentRepository interface {
	ListPaymentsByUser(ctx context.Context, userID string) ([]models.PaymentRecord, error)
}

// Crediter applies an approved transaction to its article in one commit:
// article pending -> paid, transaction marked approved and credited, history
// row inserted. Returns ErrWriteConflict when the article was no longer pending.
type Crediter interface {
	Credit(ctx context.Context, credit models.Credit) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
