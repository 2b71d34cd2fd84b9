package service

import (
	"context"
	"errors"
	"log/slog"

	"azebot/internal/gateway"
	"azebot/internal/models"
	"azebot/internal/repository"
	"azebot/pkg/utils"
)

type Resolution struct {
	TransactionID string                   `json:"transactionId"`
	ArticleID     string                   `json:"articleId"`
	UserID        string                   `json:"-"`
	Status        models.TransactionStatus `json:"status"`
	Amount        int64                    `json:"amount"`
	Currency      string                   `json:"currency"`
	Mode          models.PaymentMode       `json:"mode"`
}

type StatusResolver interface {
	Resolve(ctx context.Context, transactionID string) (*Resolution, error)
}

type statusResolver struct {
	txRepo  repository.TransactionRepository
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewStatusResolver(txRepo repository.TransactionRepository, gw gateway.Gateway, logger *slog.Logger) StatusResolver {
	return &statusResolver{txRepo: txRepo, gateway: gw, logger: logger}
}

// Resolve reports what is known about a transaction. A gateway that cannot
// be reached yields StatusUnknown, never a failure. Approved is reported but
// never written here; crediting belongs to the reconciler.
func (r *statusResolver) Resolve(ctx context.Context, transactionID string) (*Resolution, error) {
	t, err := r.txRepo.GetTransaction(ctx, transactionID)
	if err != nil {
		r.logger.Error("resolve: transaction lookup failed", "transactionId", transactionID, "error", err)
		return nil, utils.ErrInternalServer
	}
	if t == nil {
		return nil, utils.ErrTransactionNotFound
	}

	res := &Resolution{
		TransactionID: t.TransactionID,
		ArticleID:     t.ArticleID,
		UserID:        t.UserID,
		Status:        t.Status,
		Amount:        t.AmountMinorUnits,
		Currency:      t.Currency,
		Mode:          t.Mode,
	}
	if t.Status.IsTerminal() {
		return res, nil
	}
	if t.GatewayRef == "" {
		res.Status = models.StatusPending
		return res, nil
	}

	st, err := r.gateway.GetTransaction(ctx, t.GatewayRef)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		res.Status = models.StatusPending
		return res, nil
	case err != nil:
		r.logger.Warn("resolve: gateway lookup failed", "transactionId", t.TransactionID, "gatewayRef", t.GatewayRef, "error", err)
		res.Status = models.StatusUnknown
		return res, nil
	}

	// The processor echoes the checkout metadata. A different transaction id
	// means the stored gateway reference points at someone else's payment.
	if echoed := st.Metadata["transaction_id"]; echoed != "" && echoed != t.TransactionID {
		r.logger.Error("resolve: gateway reference belongs to another transaction",
			"transactionId", t.TransactionID, "gatewayRef", t.GatewayRef, "echoed", echoed)
		res.Status = models.StatusUnknown
		return res, nil
	}
	if st.Status == models.StatusPending && st.Raw != "" {
		r.logger.Debug("resolve: gateway still pending", "transactionId", t.TransactionID, "raw", st.Raw)
	}

	res.Status = st.Status
	if st.Amount > 0 {
		res.Amount = st.Amount
	}
	if st.Mode != "" {
		res.Mode = st.Mode
	}

	if st.Status != models.StatusApproved && st.Status != t.Status {
		r.cache(ctx, t, st.Status, st.Mode)
	}
	return res, nil
}

func (r *statusResolver) cache(ctx context.Context, t *models.Transaction, to models.TransactionStatus, mode models.PaymentMode) {
	applied, err := r.txRepo.TransitionStatus(ctx, t.TransactionID, to, models.TransitionFields{Mode: mode})
	if err != nil {
		r.logger.Warn("resolve: could not cache status", "transactionId", t.TransactionID, "status", to, "error", err)
		return
	}
	if applied {
		r.logger.Info("transaction status updated", "transactionId", t.TransactionID, "from", t.Status, "status", to)
	}
}
