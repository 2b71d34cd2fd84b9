package gateway

import (
	"context"
	"net/url"
	"strings"

	"azebot/internal/models"

	"github.com/pkg/errors"
)

var (
	// ErrUnavailable covers network failures, timeouts, 5xx answers and an
	// open breaker. It never means the payment failed.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrNotFound is returned when the gateway does not (yet) know a reference.
	ErrNotFound = errors.New("gateway transaction not found")
	// ErrRejected is a 4xx refusal of a checkout request.
	ErrRejected = errors.New("gateway rejected request")
)

// Gateway is the external processor as seen by the service.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetTransaction(ctx context.Context, gatewayRef string) (*Status, error)
}

type Customer struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
}

type CheckoutRequest struct {
	Reference   string            `json:"reference"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Customer    Customer          `json:"customer"`
	CallbackURL string            `json:"callback_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Checkout struct {
	GatewayRef string
	URL        string
}

type Status struct {
	GatewayRef string
	Status     models.TransactionStatus
	Raw        string
	Amount     int64
	Mode       models.PaymentMode
	Metadata   map[string]string
}

// NormalizeStatus maps a processor status onto the local lifecycle. Anything
// unrecognised is treated as still pending.
func NormalizeStatus(raw string) models.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "transferred":
		return models.StatusApproved
	case "declined", "canceled", "cancelled":
		return models.StatusDeclined
	case "expired":
		return models.StatusExpired
	default:
		return models.StatusPending
	}
}

// RedirectURL appends the article and transaction references the browser
// carries back from the hosted checkout page.
func RedirectURL(base, articleID, transactionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid redirect url %q", base)
	}
	q := u.Query()
	q.Set("article_id", articleID)
	q.Set("transaction_id", transactionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
