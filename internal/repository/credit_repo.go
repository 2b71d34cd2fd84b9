package repository

import (
	"context"
	"fmt"

	"azebot/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgCrediter struct {
	db *pgxpool.Pool
}

func NewCrediter(db *pgxpool.Pool) Crediter {
	return &pgCrediter{db: db}
}

func (c *pgCrediter) Credit(ctx context.Context, credit models.Credit) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting credit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := compareAndSetPaymentStatus(ctx, tx, credit.ArticleID, models.PaymentStatusPending, credit.PaymentFields())
	if err != nil {
		return err
	}
	if !ok {
		return ErrWriteConflict
	}

	// approved may already be stored by an earlier attempt whose credit lost.
	query := `
		UPDATE transactions
		SET status = 'approved', credited = TRUE, updated_at = NOW()
		WHERE transaction_id = $1 AND status IN ('created', 'pending', 'approved') AND NOT credited
	`
	tag, err := tx.Exec(ctx, query, credit.TransactionID)
	if err != nil {
		return fmt.Errorf("error marking transaction credited: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrWriteConflict
	}

	if err := insertPayment(ctx, tx, credit.Record()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing credit transaction: %w", err)
	}
	return nil
}
