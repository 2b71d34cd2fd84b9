package repository

import (
	"context"
	"fmt"

	"azebot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &pgPaymentRepository{db: db}
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) error {
	query := `
		INSERT INTO payments (id, transaction_id, article_id, user_id, amount, currency, method, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.Exec(ctx, query, p.ID, p.TransactionID, p.ArticleID, p.UserID, p.Amount, p.Currency, p.Method, p.PaidAt)
	if err != nil {
		return fmt.Errorf("error executing insert payment query: %w", err)
	}
	return nil
}

func (r *pgPaymentRepository) ListPaymentsByUser(ctx context.Context, userID string) ([]models.PaymentRecord, error) {
	query := `
		SELECT id, transaction_id, article_id, user_id, amount, currency, method, paid_at
		FROM payments
		WHERE user_id = $1
		ORDER BY paid_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying for payments: %w", err)
	}
	defer rows.Close()

	var payments []models.PaymentRecord
	for rows.Next() {
		var p models.PaymentRecord
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.ArticleID, &p.UserID, &p.Amount, &p.Currency, &p.Method, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("error scanning payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating over payment rows: %w", err)
	}
	return payments, nil
}
