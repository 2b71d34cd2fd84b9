package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"azebot/internal/models"
	"azebot/internal/repository"

	"github.com/robfig/cron"
)

type SweeperConfig struct {
	Schedule   string
	MinAge     time.Duration
	CreatedTTL time.Duration
	BatchSize  int
	RunTimeout time.Duration
}

type SweepResult struct {
	Reconciled int
	Unlocked   int
	Expired    int
	Failed     int
}

// Sweeper periodically settles transactions whose users never came back to
// the confirmation page, and expires checkouts the gateway never acknowledged.
type Sweeper struct {
	cfg        SweeperConfig
	reconciler AccessReconciler
	txRepo     repository.TransactionRepository
	logger     *slog.Logger
	now        func() time.Time
	cron       *cron.Cron
	running    int32
}

func NewSweeper(cfg SweeperConfig, reconciler AccessReconciler, txRepo repository.TransactionRepository, logger *slog.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 50 * time.Second
	}
	return &Sweeper{
		cfg:        cfg,
		reconciler: reconciler,
		txRepo:     txRepo,
		logger:     logger,
		now:        time.Now,
		cron:       cron.New(),
	}
}

func (s *Sweeper) Start() error {
	err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.cfg.Schedule)
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// RunOnce performs a single sweep. It returns false without doing anything
// when a previous sweep is still in progress.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, bool) {
	var res SweepResult
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.logger.Warn("sweeper: previous run still in progress, skipping")
		return res, false
	}
	defer atomic.StoreInt32(&s.running, 0)

	now := s.now()
	s.expireCreated(ctx, now, &res)
	s.reconcilePending(ctx, now, &res)

	if res != (SweepResult{}) {
		s.logger.Info("sweeper run finished",
			"reconciled", res.Reconciled, "unlocked", res.Unlocked, "expired", res.Expired, "failed", res.Failed)
	}
	return res, true
}

func (s *Sweeper) expireCreated(ctx context.Context, now time.Time, res *SweepResult) {
	if s.cfg.CreatedTTL <= 0 {
		return
	}
	stale, err := s.txRepo.ListStaleTransactions(ctx, models.StatusCreated, now.Add(-s.cfg.CreatedTTL), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("sweeper: listing created transactions failed", "error", err)
		res.Failed++
		return
	}
	for _, t := range stale {
		applied, err := s.txRepo.TransitionStatus(ctx, t.TransactionID, models.StatusExpired, models.TransitionFields{})
		if err != nil {
			s.logger.Error("sweeper: expiring transaction failed", "transactionId", t.TransactionID, "error", err)
			res.Failed++
			continue
		}
		if applied {
			res.Expired++
		}
	}
}

func (s *Sweeper) reconcilePending(ctx context.Context, now time.Time, res *SweepResult) {
	stale, err := s.txRepo.ListStaleTransactions(ctx, models.StatusPending, now.Add(-s.cfg.MinAge), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("sweeper: listing pending transactions failed", "error", err)
		res.Failed++
		return
	}
	for _, t := range stale {
		if ctx.Err() != nil {
			return
		}
		out, err := s.reconciler.ReconcileTransaction(ctx, t.TransactionID)
		if merr := s.txRepo.MarkChecked(ctx, t.TransactionID); merr != nil {
			s.logger.Warn("sweeper: could not mark transaction checked", "transactionId", t.TransactionID, "error", merr)
		}
		if err != nil {
			s.logger.Warn("sweeper: reconcile failed", "transactionId", t.TransactionID, "error", err)
			res.Failed++
			continue
		}
		res.Reconciled++
		if out.Reason == ReasonCredited {
			res.Unlocked++
		}
	}
}
