package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"azebot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `transaction_id, gateway_ref, article_id, user_id, amount, currency, status, mode, checkout_url, credited, checked_at, created_at, updated_at`

type pgTransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) TransactionRepository {
	return &pgTransactionRepository{db: db}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.TransactionID, &t.GatewayRef, &t.ArticleID, &t.UserID, &t.AmountMinorUnits, &t.Currency,
		&t.Status, &t.Mode, &t.CheckoutURL, &t.Credited, &t.CheckedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *pgTransactionRepository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (transaction_id, gateway_ref, article_id, user_id, amount, currency, status, mode, checkout_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.TransactionID, t.GatewayRef, t.ArticleID, t.UserID, t.AmountMinorUnits, t.Currency, t.Status, t.Mode, t.CheckoutURL,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("error executing insert transaction query: %w", err)
	}
	return nil
}

func (r *pgTransactionRepository) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`

	t, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error scanning transaction row: %w", err)
	}
	return t, nil
}

// LatestOpenTransaction returns the most recent transaction for the pair that
// has not failed. An approved transaction counts as open until it is credited.
func (r *pgTransactionRepository) LatestOpenTransaction(ctx context.Context, articleID, userID string) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE article_id = $1 AND user_id = $2 AND status IN ('created', 'pending', 'approved')
		ORDER BY created_at DESC
		LIMIT 1
	`
	t, err := scanTransaction(r.db.QueryRow(ctx, query, articleID, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error scanning latest transaction row: %w", err)
	}
	return t, nil
}

// TransitionStatus moves the transaction forward only if its stored status is
// one the target may follow. false means nothing was written.
func (r *pgTransactionRepository) TransitionStatus(ctx context.Context, transactionID string, to models.TransactionStatus, fields models.TransitionFields) (bool, error) {
	return transitionStatus(ctx, r.db, transactionID, to, fields)
}

func transitionStatus(ctx context.Context, q querier, transactionID string, to models.TransactionStatus, fields models.TransitionFields) (bool, error) {
	from := models.StatusesBefore(to)
	if len(from) == 0 {
		return false, nil
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE transactions
		SET status = $2,
			gateway_ref = COALESCE(NULLIF($3, ''), gateway_ref),
			mode = COALESCE(NULLIF($4, ''), mode),
			checkout_url = COALESCE(NULLIF($5, ''), checkout_url),
			updated_at = NOW()
		WHERE transaction_id = $1 AND status = ANY($6)
	`
	tag, err := q.Exec(ctx, query, transactionID, to, fields.GatewayRef, string(fields.Mode), fields.CheckoutURL, allowed)
	if err != nil {
		return false, fmt.Errorf("error updating transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStaleTransactions returns transactions never checked first, then the
// ones checked longest ago, so rows that stay put rotate out of the batch.
func (r *pgTransactionRepository) ListStaleTransactions(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND created_at < $2
		ORDER BY checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $3
	`
	return r.list(ctx, query, status, olderThan, limit)
}

func (r *pgTransactionRepository) MarkChecked(ctx context.Context, transactionID string) error {
	query := `UPDATE transactions SET checked_at = NOW() WHERE transaction_id = $1`
	if _, err := r.db.Exec(ctx, query, transactionID); err != nil {
		return fmt.Errorf("error marking transaction checked: %w", err)
	}
	return nil
}

func (r *pgTransactionRepository) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

func (r *pgTransactionRepository) list(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying for transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating over transaction rows: %w", err)
	}

	return transactions, nil
}
