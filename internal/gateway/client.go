package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"azebot/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the processor's REST API through a circuit breaker. Only
// availability failures count against the breaker.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type checkoutResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type transactionResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Mode     string            `json:"mode"`
	Metadata map[string]string `json:"metadata"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	result, err := c.execute(func() (interface{}, error) {
		var out checkoutResponse
		var apiErr errorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			SetError(&apiErr).
			Post("/v1/checkouts")
		if err := classify(resp, err, apiErr.Message); err != nil {
			return nil, errors.WithMessagef(err, "create checkout %s", req.Reference)
		}
		if out.ID == "" || out.URL == "" {
			return nil, errors.Wrapf(ErrUnavailable, "create checkout %s: incomplete response", req.Reference)
		}
		return &Checkout{GatewayRef: out.ID, URL: out.URL}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Checkout), nil
}

func (c *Client) GetTransaction(ctx context.Context, gatewayRef string) (*Status, error) {
	result, err := c.execute(func() (interface{}, error) {
		var out transactionResponse
		var apiErr errorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("id", gatewayRef).
			SetResult(&out).
			SetError(&apiErr).
			Get("/v1/transactions/{id}")
		if err := classify(resp, err, apiErr.Message); err != nil {
			return nil, errors.WithMessagef(err, "get transaction %s", gatewayRef)
		}
		return &Status{
			GatewayRef: gatewayRef,
			Status:     NormalizeStatus(out.Status),
			Raw:        out.Status,
			Amount:     out.Amount,
			Mode:       models.PaymentMode(out.Mode),
			Metadata:   out.Metadata,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Status), nil
}

func (c *Client) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.breaker.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return result, err
}

// classify turns a resty outcome into one of the package sentinels.
func classify(resp *resty.Response, err error, message string) error {
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return errors.Wrapf(ErrUnavailable, "status %d", code)
	default:
		if message == "" {
			message = fmt.Sprintf("status %d", code)
		}
		return errors.Wrap(ErrRejected, message)
	}
}
