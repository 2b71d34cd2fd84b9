package poller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ErrRejected marks a 4xx answer from the API. Asking again will not help.
var ErrRejected = errors.New("request rejected")

type Customer struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
}

type PaymentRequest struct {
	Amount      int64    `json:"amount"`
	Description string   `json:"description"`
	Customer    Customer `json:"customer"`
	ArticleID   string   `json:"articleId"`
	UserID      string   `json:"userId"`
}

type PaymentSession struct {
	Success       bool   `json:"success"`
	URL           string `json:"url"`
	TransactionID string `json:"transactionId"`
}

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}

// APIClient talks to the payment API on behalf of one user.
type APIClient struct {
	http   *resty.Client
	userID string
}

func NewAPIClient(baseURL, token, userID string, timeout time.Duration) *APIClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &APIClient{http: c, userID: userID}
}

func (c *APIClient) Reconcile(ctx context.Context, articleID string) (*Outcome, error) {
	var out Outcome
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("articleId", articleID).
		SetBody(map[string]string{"userId": c.userID}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/reconcile/{articleId}")
	if err := check(resp, err, apiErr); err != nil {
		return nil, errors.WithMessagef(err, "reconcile %s", articleID)
	}
	return &out, nil
}

func (c *APIClient) ArticleForTransaction(ctx context.Context, transactionID string) (string, error) {
	var out struct {
		ArticleID string `json:"articleId"`
	}
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("transactionId", transactionID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/transaction-status/{transactionId}")
	if err := check(resp, err, apiErr); err != nil {
		return "", errors.WithMessagef(err, "transaction %s", transactionID)
	}
	return out.ArticleID, nil
}

func (c *APIClient) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	var out PaymentSession
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/create-payment")
	if err := check(resp, err, apiErr); err != nil {
		return nil, errors.WithMessagef(err, "create payment for %s", req.ArticleID)
	}
	return &out, nil
}

func check(resp *resty.Response, err error, apiErr apiError) error {
	if err != nil {
		return errors.Wrap(err, "api unreachable")
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusUnauthorized:
		msg := apiErr.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", code)
		}
		return errors.Wrap(ErrRejected, msg)
	default:
		return errors.Errorf("api answered %d %s", code, apiErr.Error)
	}
}
