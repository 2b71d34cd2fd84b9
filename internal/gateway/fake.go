package gateway

import (
	"context"
	"fmt"
	"sync"

	"azebot/internal/models"
)

type fakeTransaction struct {
	reference string
	request   CheckoutRequest
	status    string
	mode      models.PaymentMode
	amount    int64
	hidden    bool
}

// Fake is an in-process gateway. With AutoApprove set every checkout is
// approved as soon as it is created and the checkout URL points straight at
// the callback, which is how the service runs with GATEWAY_MODE=fake.
type Fake struct {
	AutoApprove bool

	mu        sync.Mutex
	seq       int
	txs       map[string]*fakeTransaction
	byRef     map[string]string
	createErr error
	getErr    error
	creates   int
	lookups   int
}

func NewFake() *Fake {
	return &Fake{
		txs:   make(map[string]*fakeTransaction),
		byRef: make(map[string]string),
	}
}

func (f *Fake) CreateCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	id := fmt.Sprintf("fake-%d", f.seq)
	tx := &fakeTransaction{reference: req.Reference, request: req, status: "pending", amount: req.Amount}
	url := "https://checkout.fake.local/pay/" + id
	if f.AutoApprove {
		tx.status = "approved"
		tx.mode = models.ModeCard
		url = req.CallbackURL
	}
	f.txs[id] = tx
	f.byRef[req.Reference] = id
	return &Checkout{GatewayRef: id, URL: url}, nil
}

func (f *Fake) GetTransaction(_ context.Context, gatewayRef string) (*Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.getErr != nil {
		return nil, f.getErr
	}
	tx, ok := f.txs[gatewayRef]
	if !ok || tx.hidden {
		return nil, ErrNotFound
	}
	return &Status{
		GatewayRef: gatewayRef,
		Status:     NormalizeStatus(tx.status),
		Raw:        tx.status,
		Amount:     tx.amount,
		Mode:       tx.mode,
		Metadata:   tx.request.Metadata,
	}, nil
}

// SetStatus sets the raw processor status of a checkout.
func (f *Fake) SetStatus(gatewayRef, status string, mode models.PaymentMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[gatewayRef]; ok {
		tx.status = status
		tx.mode = mode
		tx.hidden = false
	}
}

// SetMetadata overrides one metadata value the gateway echoes back.
func (f *Fake) SetMetadata(gatewayRef, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[gatewayRef]
	if !ok {
		return
	}
	md := make(map[string]string, len(tx.request.Metadata)+1)
	for k, v := range tx.request.Metadata {
		md[k] = v
	}
	md[key] = value
	tx.request.Metadata = md
}

// SetAmount overrides the amount the gateway reports as paid.
func (f *Fake) SetAmount(gatewayRef string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[gatewayRef]; ok {
		tx.amount = amount
	}
}

// Hide makes lookups of a checkout answer not found until its status is set
// again, like a processor that has not propagated a new transaction yet.
func (f *Fake) Hide(gatewayRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[gatewayRef]; ok {
		tx.hidden = true
	}
}

// FailCreate makes CreateCheckout return err until called again with nil.
func (f *Fake) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// FailLookups makes GetTransaction return err until called again with nil.
func (f *Fake) FailLookups(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// RefFor returns the gateway reference issued for a merchant reference.
func (f *Fake) RefFor(reference string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byRef[reference]
	return id, ok
}

// Request returns the checkout request that produced gatewayRef.
func (f *Fake) Request(gatewayRef string) (CheckoutRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[gatewayRef]
	if !ok {
		return CheckoutRequest{}, false
	}
	return tx.request, true
}

func (f *Fake) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *Fake) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}
