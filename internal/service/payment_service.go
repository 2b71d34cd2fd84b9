package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"azebot/internal/gateway"
	"azebot/internal/models"
	"azebot/internal/repository"
	"azebot/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CustomerParams struct {
	Firstname string `json:"firstname" validate:"max=100"`
	Lastname  string `json:"lastname" validate:"max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
}

type CreatePaymentParams struct {
	ArticleID   string         `json:"articleId" validate:"required"`
	UserID      string         `json:"userId" validate:"required"`
	Amount      int64          `json:"amount" validate:"gte=0"`
	Description string         `json:"description" validate:"max=255"`
	Customer    CustomerParams `json:"customer"`
}

type CreatePaymentResponse struct {
	TransactionID string `json:"transactionId"`
	CheckoutURL   string `json:"url"`
}

type PaymentService interface {
	CreatePayment(ctx context.Context, params CreatePaymentParams) (*CreatePaymentResponse, error)
}

type PaymentConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type paymentService struct {
	articles repository.ArticleRepository
	txRepo   repository.TransactionRepository
	gateway  gateway.Gateway
	validate *validator.Validate
	cfg      PaymentConfig
	logger   *slog.Logger
}

func NewPaymentService(articles repository.ArticleRepository, txRepo repository.TransactionRepository, gw gateway.Gateway, cfg PaymentConfig, logger *slog.Logger) PaymentService {
	return &paymentService{
		articles: articles,
		txRepo:   txRepo,
		gateway:  gw,
		validate: validator.New(),
		cfg:      cfg,
		logger:   logger,
	}
}

// CreatePayment records a new transaction and opens a hosted checkout for it.
// The record is written before the gateway is contacted so the redirect-back
// can always be matched to it.
func (s *paymentService) CreatePayment(ctx context.Context, params CreatePaymentParams) (*CreatePaymentResponse, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, utils.ErrInvalidParams.WithData(err.Error())
	}

	article, err := s.articles.GetArticle(ctx, params.ArticleID)
	if err != nil {
		s.logger.Error("create payment: article lookup failed", "articleId", params.ArticleID, "error", err)
		return nil, utils.ErrInternalServer
	}
	if article == nil {
		return nil, utils.ErrInvalidArticle
	}
	if article.Unlocked() {
		return nil, utils.ErrArticleAlreadyPaid
	}
	if params.Amount != 0 && params.Amount != article.Price {
		s.logger.Warn("create payment: client amount does not match price",
			"articleId", article.ID, "amount", params.Amount, "price", article.Price)
		return nil, utils.ErrInvalidAmount
	}

	t := &models.Transaction{
		TransactionID:    uuid.NewString(),
		ArticleID:        article.ID,
		UserID:           params.UserID,
		AmountMinorUnits: article.Price,
		Currency:         s.cfg.Currency,
		Status:           models.StatusCreated,
	}
	if err := s.txRepo.CreateTransaction(ctx, t); err != nil {
		s.logger.Error("create payment: could not persist transaction", "transactionId", t.TransactionID, "error", err)
		return nil, utils.ErrInternalServer
	}
	log := s.logger.With("transactionId", t.TransactionID, "articleId", t.ArticleID, "userId", t.UserID)

	callbackURL, err := gateway.RedirectURL(s.cfg.SuccessURL, t.ArticleID, t.TransactionID)
	if err != nil {
		log.Error("create payment: bad success url", "error", err)
		return nil, utils.ErrInternalServer
	}
	cancelURL, err := gateway.RedirectURL(s.cfg.CancelURL, t.ArticleID, t.TransactionID)
	if err != nil {
		log.Error("create payment: bad cancel url", "error", err)
		return nil, utils.ErrInternalServer
	}

	description := strings.TrimSpace(params.Description)
	if description == "" {
		description = "Article " + article.Title
	}

	checkout, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		Reference:   t.TransactionID,
		Amount:      t.AmountMinorUnits,
		Currency:    t.Currency,
		Description: description,
		Customer: gateway.Customer{
			Firstname: params.Customer.Firstname,
			Lastname:  params.Customer.Lastname,
			Email:     params.Customer.Email,
		},
		CallbackURL: callbackURL,
		CancelURL:   cancelURL,
		Metadata: map[string]string{
			"article_id":     t.ArticleID,
			"user_id":        t.UserID,
			"transaction_id": t.TransactionID,
		},
	})
	switch {
	case errors.Is(err, gateway.ErrRejected):
		log.Warn("create payment: gateway rejected checkout", "error", err)
		if _, terr := s.txRepo.TransitionStatus(ctx, t.TransactionID, models.StatusDeclined, models.TransitionFields{}); terr != nil {
			log.Error("create payment: could not record rejection", "error", terr)
		}
		return nil, utils.ErrGatewayRejected
	case err != nil:
		// The record stays created; the sweeper expires it.
		log.Warn("create payment: gateway unavailable", "error", err)
		return nil, utils.ErrGatewayUnavailable
	}

	applied, err := s.txRepo.TransitionStatus(ctx, t.TransactionID, models.StatusPending, models.TransitionFields{
		GatewayRef:  checkout.GatewayRef,
		CheckoutURL: checkout.URL,
	})
	if err != nil || !applied {
		log.Error("create payment: could not record checkout", "gatewayRef", checkout.GatewayRef, "applied", applied, "error", err)
		return nil, utils.ErrInternalServer
	}

	log.Info("payment session created", "gatewayRef", checkout.GatewayRef, "amount", t.AmountMinorUnits)
	return &CreatePaymentResponse{TransactionID: t.TransactionID, CheckoutURL: checkout.URL}, nil
}
