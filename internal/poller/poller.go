package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePolling   Phase = "polling"
	PhaseUnlocked  Phase = "unlocked"
	PhaseFailed    Phase = "failed"
	PhaseExhausted Phase = "exhausted"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 12

	ExhaustedMessage = "status unknown, try manual refresh or contact support"
)

// Outcome mirrors the API's reconcile answer.
type Outcome struct {
	State         string `json:"state"`
	Retry         bool   `json:"retry"`
	Reason        string `json:"reason"`
	TransactionID string `json:"transactionId"`
}

func (o *Outcome) Unlocked() bool {
	return o.State == "unlocked"
}

type Reconciler interface {
	Reconcile(ctx context.Context, articleID string) (*Outcome, error)
}

type State struct {
	Phase     Phase
	ArticleID string
	Attempts  int
	Last      *Outcome
	LastError string
	Message   string
}

type Config struct {
	Interval       time.Duration
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// Poller asks the API to reconcile one article on a fixed interval until it
// is unlocked, definitively refused, or the attempt budget runs out.
type Poller struct {
	rec    Reconciler
	sched  Scheduler
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	handle  Handle
	gen     int
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	nextSub int
	subs    map[int]func(State)
}

func New(rec Reconciler, sched Scheduler, cfg Config, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = cfg.Interval
	}
	if sched == nil {
		sched = SystemScheduler()
	}
	return &Poller{
		rec:    rec,
		sched:  sched,
		cfg:    cfg,
		logger: logger,
		state:  State{Phase: PhaseIdle},
		subs:   make(map[int]func(State)),
	}
}

// Start begins polling articleID; the first attempt is scheduled immediately.
func (p *Poller) Start(ctx context.Context, articleID string) {
	p.mu.Lock()
	if p.stopped || p.state.Phase != PhaseIdle {
		p.mu.Unlock()
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = State{Phase: PhasePolling, ArticleID: articleID}
	p.scheduleLocked(0)
	snapshot, subs := p.snapshotLocked()
	p.mu.Unlock()

	notify(subs, snapshot)
}

// Refresh resets the attempt budget and reconciles once right away. It also
// revives a poller that ran out of attempts or was refused.
func (p *Poller) Refresh() {
	p.mu.Lock()
	if p.stopped || p.state.Phase == PhaseIdle || p.state.Phase == PhaseUnlocked {
		p.mu.Unlock()
		return
	}
	if p.handle != nil {
		p.handle.Cancel()
		p.handle = nil
	}
	p.state.Phase = PhasePolling
	p.state.Attempts = 0
	p.state.Message = ""
	p.scheduleLocked(0)
	snapshot, subs := p.snapshotLocked()
	p.mu.Unlock()

	notify(subs, snapshot)
}

// Stop cancels any scheduled attempt and any attempt in flight.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.gen++
	if p.handle != nil {
		p.handle.Cancel()
		p.handle = nil
	}
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe calls fn after every state change.
func (p *Poller) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *Poller) scheduleLocked(d time.Duration) {
	p.gen++
	gen := p.gen
	p.handle = p.sched.AfterFunc(d, func() { p.attempt(gen) })
}

func (p *Poller) attempt(gen int) {
	p.mu.Lock()
	if p.stopped || gen != p.gen || p.state.Phase != PhasePolling {
		p.mu.Unlock()
		return
	}
	p.handle = nil
	p.state.Attempts++
	articleID, ctx := p.state.ArticleID, p.ctx
	p.mu.Unlock()

	actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	out, err := p.rec.Reconcile(actx, articleID)
	cancel()

	p.mu.Lock()
	if p.stopped || gen != p.gen {
		p.mu.Unlock()
		return
	}
	log := p.logger.With("articleId", articleID, "attempt", p.state.Attempts)

	switch {
	case err != nil && errors.Is(err, ErrRejected):
		log.Warn("reconcile refused", "error", err)
		p.state.LastError = err.Error()
		p.state.Phase = PhaseFailed
		p.state.Message = err.Error()
	case err != nil:
		// Transport trouble is never a payment failure.
		log.Debug("reconcile attempt failed", "error", err)
		p.state.LastError = err.Error()
		p.retryLocked()
	case out.Unlocked():
		log.Info("article unlocked", "transactionId", out.TransactionID)
		p.state.Last, p.state.LastError = out, ""
		p.state.Phase = PhaseUnlocked
	case !out.Retry:
		log.Info("payment not completed", "reason", out.Reason)
		p.state.Last, p.state.LastError = out, ""
		p.state.Phase = PhaseFailed
		p.state.Message = out.Reason
	default:
		p.state.Last, p.state.LastError = out, ""
		p.retryLocked()
	}

	snapshot, subs := p.snapshotLocked()
	p.mu.Unlock()
	notify(subs, snapshot)
}

func (p *Poller) retryLocked() {
	if p.state.Attempts >= p.cfg.MaxAttempts {
		p.state.Phase = PhaseExhausted
		p.state.Message = ExhaustedMessage
		return
	}
	p.scheduleLocked(p.cfg.Interval)
}

func (p *Poller) snapshotLocked() (State, []func(State)) {
	subs := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	return p.state, subs
}

func notify(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s)
	}
}
