package service

import (
	"context"
	"log/slog"

	"azebot/internal/models"
	"azebot/internal/repository"
	"azebot/pkg/utils"
)

type ArticlePrice struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Category models.Category `json:"category"`
	Price    int64           `json:"price"`
	Currency string          `json:"currency"`
	Unlocked bool            `json:"unlocked"`
}

// CatalogService serves read-only views of articles and payment history.
type CatalogService interface {
	GetArticle(ctx context.Context, id string) (*ArticlePrice, error)
	ListPayments(ctx context.Context, userID string) ([]models.PaymentRecord, error)
	ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	ImportArticles(ctx context.Context, articles []models.Article) (int, error)
}

type catalogService struct {
	articles    repository.ArticleRepository
	txRepo      repository.TransactionRepository
	paymentRepo repository.PaymentRepository
	currency    string
	logger      *slog.Logger
}

func NewCatalogService(articles repository.ArticleRepository, txRepo repository.TransactionRepository, paymentRepo repository.PaymentRepository, currency string, logger *slog.Logger) CatalogService {
	return &catalogService{
		articles:    articles,
		txRepo:      txRepo,
		paymentRepo: paymentRepo,
		currency:    currency,
		logger:      logger,
	}
}

func (s *catalogService) GetArticle(ctx context.Context, id string) (*ArticlePrice, error) {
	a, err := s.articles.GetArticle(ctx, id)
	if err != nil {
		s.logger.Error("catalog: article lookup failed", "articleId", id, "error", err)
		return nil, utils.ErrInternalServer
	}
	if a == nil {
		return nil, utils.ErrInvalidArticle
	}
	return &ArticlePrice{
		ID:       a.ID,
		Title:    a.Title,
		Category: a.Category,
		Price:    a.Price,
		Currency: s.currency,
		Unlocked: a.Unlocked(),
	}, nil
}

func (s *catalogService) ListPayments(ctx context.Context, userID string) ([]models.PaymentRecord, error) {
	payments, err := s.paymentRepo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		s.logger.Error("catalog: payment history failed", "userId", userID, "error", err)
		return nil, utils.ErrInternalServer
	}
	if payments == nil {
		payments = []models.PaymentRecord{}
	}
	return payments, nil
}

func (s *catalogService) ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	txs, err := s.txRepo.ListTransactionsByUser(ctx, userID)
	if err != nil {
		s.logger.Error("catalog: transaction history failed", "userId", userID, "error", err)
		return nil, utils.ErrInternalServer
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return txs, nil
}

// ImportArticles upserts catalogue entries, stopping at the first failure.
func (s *catalogService) ImportArticles(ctx context.Context, articles []models.Article) (int, error) {
	for i := range articles {
		if err := s.articles.UpsertArticle(ctx, &articles[i]); err != nil {
			s.logger.Error("catalog: import failed", "articleId", articles[i].ID, "error", err)
			return i, err
		}
	}
	s.logger.Info("articles imported", "count", len(articles))
	return len(articles), nil
}
