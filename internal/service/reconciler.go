package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"azebot/internal/models"
	"azebot/internal/repository"
	"azebot/pkg/utils"

	"golang.org/x/sync/singleflight"
)

type AccessState string

const (
	StateLocked   AccessState = "locked"
	StateUnlocked AccessState = "unlocked"
)

// reconcileTimeout bounds work shared by every caller waiting on the same key.
const reconcileTimeout = 30 * time.Second

const (
	ReasonFree           = "free"
	ReasonPaid           = "paid"
	ReasonCredited       = "credited"
	ReasonNoPayment      = "no_payment"
	ReasonPending        = "pending"
	ReasonUnknown        = "unknown"
	ReasonDeclined       = "declined"
	ReasonExpired        = "expired"
	ReasonAmountMismatch = "amount_mismatch"
)

// Outcome is the answer to "can this user read this article now". Retry
// tells the caller whether asking again later may change the answer.
type Outcome struct {
	State         AccessState `json:"state"`
	Retry         bool        `json:"retry"`
	Reason        string      `json:"reason"`
	TransactionID string      `json:"transactionId,omitempty"`
}

func (o *Outcome) Unlocked() bool {
	return o.State == StateUnlocked
}

// UnlockEvent is published once per credited transaction.
type UnlockEvent struct {
	ArticleID     string
	UserID        string
	TransactionID string
	Amount        int64
	Currency      string
	Method        string
	PaidAt        time.Time
}

type AccessReconciler interface {
	Reconcile(ctx context.Context, articleID, userID string) (*Outcome, error)
	ReconcileTransaction(ctx context.Context, transactionID string) (*Outcome, error)
	Access(ctx context.Context, articleID, userID string) (bool, error)
	Observe(articleID string, fn func(UnlockEvent)) (unsubscribe func())
}

type accessReconciler struct {
	articles repository.ArticleRepository
	txRepo   repository.TransactionRepository
	crediter repository.Crediter
	resolver StatusResolver
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	nextID    int
	observers map[string]map[int]func(UnlockEvent)
}

func NewAccessReconciler(articles repository.ArticleRepository, txRepo repository.TransactionRepository, crediter repository.Crediter, resolver StatusResolver, logger *slog.Logger) AccessReconciler {
	return &accessReconciler{
		articles:  articles,
		txRepo:    txRepo,
		crediter:  crediter,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
		observers: make(map[string]map[int]func(UnlockEvent)),
	}
}

// Reconcile brings the article's stored payment state in line with the
// gateway for the user's latest open transaction. Concurrent calls for the
// same pair share one execution; across processes the conditional article
// write is what keeps the unlock single.
func (r *accessReconciler) Reconcile(ctx context.Context, articleID, userID string) (*Outcome, error) {
	v, err, _ := r.group.Do("pair:"+articleID+"\x00"+userID, func() (interface{}, error) {
		ctx, cancel := detach(ctx)
		defer cancel()
		article, out, err := r.checkArticle(ctx, articleID)
		if err != nil || out != nil {
			return out, err
		}
		t, err := r.txRepo.LatestOpenTransaction(ctx, articleID, userID)
		if err != nil {
			r.logger.Error("reconcile: transaction lookup failed", "articleId", articleID, "userId", userID, "error", err)
			return nil, utils.ErrInternalServer
		}
		if t == nil {
			return &Outcome{State: StateLocked, Reason: ReasonNoPayment}, nil
		}
		return r.settle(ctx, article, t)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

// ReconcileTransaction settles one specific transaction. Used by the sweeper.
func (r *accessReconciler) ReconcileTransaction(ctx context.Context, transactionID string) (*Outcome, error) {
	v, err, _ := r.group.Do("tx:"+transactionID, func() (interface{}, error) {
		ctx, cancel := detach(ctx)
		defer cancel()
		t, err := r.txRepo.GetTransaction(ctx, transactionID)
		if err != nil {
			r.logger.Error("reconcile: transaction lookup failed", "transactionId", transactionID, "error", err)
			return nil, utils.ErrInternalServer
		}
		if t == nil {
			return nil, utils.ErrTransactionNotFound
		}
		article, out, err := r.checkArticle(ctx, t.ArticleID)
		if err != nil {
			return nil, err
		}
		if out != nil {
			if paidByOther(article, t) {
				r.retire(ctx, t)
			}
			return out, nil
		}
		if t.Status.IsFailure() {
			return &Outcome{State: StateLocked, Reason: string(t.Status), TransactionID: t.TransactionID}, nil
		}
		return r.settle(ctx, article, t)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

// detach keeps the shared work running when the caller that started it goes
// away; the others are still waiting on its result.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
}

func paidByOther(article *models.Article, t *models.Transaction) bool {
	if !article.IsPaid() || t.Status.IsTerminal() {
		return false
	}
	return article.CreditedTransactionID == nil || *article.CreditedTransactionID != t.TransactionID
}

// retire closes a transaction left open on an article another payment
// already unlocked. A gateway approval is recorded as approved without a
// second credit so the duplicate charge stays visible to support.
func (r *accessReconciler) retire(ctx context.Context, t *models.Transaction) {
	log := r.logger.With("transactionId", t.TransactionID, "articleId", t.ArticleID, "userId", t.UserID)
	res, err := r.resolver.Resolve(ctx, t.TransactionID)
	if err != nil {
		log.Warn("reconcile: could not resolve leftover transaction", "error", err)
		return
	}

	var to models.TransactionStatus
	switch res.Status {
	case models.StatusApproved:
		log.Error("reconcile: payment approved for an article already paid", "amount", res.Amount)
		to = models.StatusApproved
	case models.StatusPending:
		to = models.StatusExpired
	default:
		// unknown is retried later; declined and expired were written by the resolver
		return
	}

	applied, err := r.txRepo.TransitionStatus(ctx, t.TransactionID, to, models.TransitionFields{Mode: res.Mode})
	if err != nil {
		log.Warn("reconcile: could not close leftover transaction", "status", to, "error", err)
		return
	}
	if applied {
		log.Info("leftover transaction closed", "status", to)
	}
}

// checkArticle returns a final outcome when the article alone decides access.
func (r *accessReconciler) checkArticle(ctx context.Context, articleID string) (*models.Article, *Outcome, error) {
	article, err := r.articles.GetArticle(ctx, articleID)
	if err != nil {
		r.logger.Error("reconcile: article lookup failed", "articleId", articleID, "error", err)
		return nil, nil, utils.ErrInternalServer
	}
	if article == nil {
		return nil, nil, utils.ErrInvalidArticle
	}
	if article.IsFree() {
		return article, &Outcome{State: StateUnlocked, Reason: ReasonFree}, nil
	}
	if article.IsPaid() {
		out := &Outcome{State: StateUnlocked, Reason: ReasonPaid}
		if article.CreditedTransactionID != nil {
			out.TransactionID = *article.CreditedTransactionID
		}
		return article, out, nil
	}
	return article, nil, nil
}

func (r *accessReconciler) settle(ctx context.Context, article *models.Article, t *models.Transaction) (*Outcome, error) {
	// Approved locally but never applied: a crash between the gateway answer
	// and the credit. The stored amount and mode are authoritative.
	if t.Status == models.StatusApproved {
		return r.credit(ctx, article, t, t.AmountMinorUnits, t.Mode)
	}

	res, err := r.resolver.Resolve(ctx, t.TransactionID)
	if err != nil {
		return nil, err
	}
	log := r.logger.With("transactionId", t.TransactionID, "articleId", article.ID, "userId", t.UserID)

	switch res.Status {
	case models.StatusApproved:
		if res.Amount < t.AmountMinorUnits {
			log.Error("reconcile: gateway amount below transaction amount", "amount", res.Amount, "expected", t.AmountMinorUnits)
			return &Outcome{State: StateLocked, Reason: ReasonAmountMismatch, TransactionID: t.TransactionID}, nil
		}
		return r.credit(ctx, article, t, res.Amount, res.Mode)
	case models.StatusDeclined, models.StatusExpired:
		log.Info("reconcile: payment failed", "status", res.Status)
		return &Outcome{State: StateLocked, Reason: string(res.Status), TransactionID: t.TransactionID}, nil
	case models.StatusUnknown:
		return &Outcome{State: StateLocked, Retry: true, Reason: ReasonUnknown, TransactionID: t.TransactionID}, nil
	default:
		return &Outcome{State: StateLocked, Retry: true, Reason: ReasonPending, TransactionID: t.TransactionID}, nil
	}
}

func (r *accessReconciler) credit(ctx context.Context, article *models.Article, t *models.Transaction, amount int64, mode models.PaymentMode) (*Outcome, error) {
	if mode == "" {
		mode = t.Mode
	}
	credit := models.Credit{
		TransactionID: t.TransactionID,
		ArticleID:     article.ID,
		UserID:        t.UserID,
		Amount:        amount,
		Currency:      t.Currency,
		Method:        string(mode),
		PaidAt:        r.now(),
	}
	log := r.logger.With("transactionId", t.TransactionID, "articleId", article.ID, "userId", t.UserID)

	err := r.crediter.Credit(ctx, credit)
	if errors.Is(err, repository.ErrWriteConflict) {
		current, rerr := r.articles.GetArticle(ctx, article.ID)
		if rerr != nil {
			log.Error("reconcile: article re-read failed", "error", rerr)
			return nil, utils.ErrInternalServer
		}
		if current != nil && current.Unlocked() {
			log.Info("reconcile: article already unlocked by a concurrent writer")
			out := &Outcome{State: StateUnlocked, Reason: ReasonPaid}
			if current.CreditedTransactionID != nil {
				out.TransactionID = *current.CreditedTransactionID
			}
			return out, nil
		}
		log.Error("reconcile: credit conflicted but article is still locked")
		return nil, utils.ErrInternalServer
	}
	if err != nil {
		log.Error("reconcile: credit failed", "error", err)
		return nil, utils.ErrInternalServer
	}

	log.Info("article unlocked", "amount", amount, "method", credit.Method)
	r.publish(UnlockEvent{
		ArticleID:     credit.ArticleID,
		UserID:        credit.UserID,
		TransactionID: credit.TransactionID,
		Amount:        credit.Amount,
		Currency:      credit.Currency,
		Method:        credit.Method,
		PaidAt:        credit.PaidAt,
	})
	return &Outcome{State: StateUnlocked, Reason: ReasonCredited, TransactionID: t.TransactionID}, nil
}

// Access answers from stored state only; the gateway is never called.
func (r *accessReconciler) Access(ctx context.Context, articleID, userID string) (bool, error) {
	article, err := r.articles.GetArticle(ctx, articleID)
	if err != nil {
		r.logger.Error("access: article lookup failed", "articleId", articleID, "error", err)
		return false, utils.ErrInternalServer
	}
	if article == nil {
		return false, utils.ErrInvalidArticle
	}
	if article.Unlocked() {
		return true, nil
	}
	txs, err := r.txRepo.ListTransactionsByUser(ctx, userID)
	if err != nil {
		r.logger.Error("access: transaction lookup failed", "userId", userID, "error", err)
		return false, utils.ErrInternalServer
	}
	for _, t := range txs {
		if t.ArticleID == articleID && t.Status == models.StatusApproved {
			return true, nil
		}
	}
	return false, nil
}

// Observe registers fn for unlocks of articleID, or of every article when
// articleID is empty. fn runs on the reconciling goroutine and must not block.
func (r *accessReconciler) Observe(articleID string, fn func(UnlockEvent)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	if r.observers[articleID] == nil {
		r.observers[articleID] = make(map[int]func(UnlockEvent))
	}
	r.observers[articleID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.observers[articleID], id)
			if len(r.observers[articleID]) == 0 {
				delete(r.observers, articleID)
			}
		})
	}
}

func (r *accessReconciler) publish(ev UnlockEvent) {
	r.mu.Lock()
	var fns []func(UnlockEvent)
	for _, key := range []string{ev.ArticleID, ""} {
		for _, fn := range r.observers[key] {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
