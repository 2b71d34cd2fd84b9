package repository

import (
	"context"
	"fmt"

	"azebot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgArticleRepository struct {
	db *pgxpool.Pool
}

func NewArticleRepository(db *pgxpool.Pool) ArticleRepository {
	return &pgArticleRepository{db: db}
}

func (r *pgArticleRepository) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	query := `
		SELECT id, title, category, price, payment_status, payment_date, payment_amount, payment_method,
			credited_transaction_id, created_at, updated_at
		FROM articles
		WHERE id = $1
	`
	var a models.Article
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Title, &a.Category, &a.Price, &a.PaymentStatus, &a.PaymentDate, &a.PaymentAmount,
		&a.PaymentMethod, &a.CreditedTransactionID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error scanning article row: %w", err)
	}
	return &a, nil
}

// CompareAndSetPaymentStatus marks the article paid only while it still holds
// the expected status. false means another writer got there first.
func (r *pgArticleRepository) CompareAndSetPaymentStatus(ctx context.Context, id string, expected models.PaymentStatus, fields models.PaymentFields) (bool, error) {
	return compareAndSetPaymentStatus(ctx, r.db, id, expected, fields)
}

func compareAndSetPaymentStatus(ctx context.Context, q querier, id string, expected models.PaymentStatus, fields models.PaymentFields) (bool, error) {
	query := `
		UPDATE articles
		SET payment_status = 'paid',
			payment_date = $3,
			payment_amount = $4,
			payment_method = $5,
			credited_transaction_id = $6,
			updated_at = NOW()
		WHERE id = $1 AND payment_status = $2
	`
	tag, err := q.Exec(ctx, query, id, expected, fields.PaymentDate, fields.PaymentAmount, fields.PaymentMethod, fields.TransactionID)
	if err != nil {
		return false, fmt.Errorf("error updating article payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertArticle writes catalogue fields. Payment fields of an existing row are
// left alone.
func (r *pgArticleRepository) UpsertArticle(ctx context.Context, a *models.Article) error {
	status := a.PaymentStatus
	if status == "" {
		status = models.PaymentStatusPending
	}
	query := `
		INSERT INTO articles (id, title, category, price, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, category = EXCLUDED.category, price = EXCLUDED.price, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, a.ID, a.Title, a.Category, a.Price, status); err != nil {
		return fmt.Errorf("error upserting article: %w", err)
	}
	return nil
}
