package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"azebot/internal/gateway"
	"azebot/internal/models"
	"azebot/internal/repository"
	"azebot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testEnv struct {
	router *gin.Engine
	store  *repository.MemoryStore
	gw     *gateway.Fake
}

func newTestEnv(t *testing.T, cfg RouterConfig, probe HealthProbe) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	gw := gateway.NewFake()
	resolver := service.NewStatusResolver(store, gw, logger)
	svc := Services{
		Payments: service.NewPaymentService(store, store, gw, service.PaymentConfig{
			Currency:   "XOF",
			SuccessURL: "http://localhost:8080/payment/success",
			CancelURL:  "http://localhost:8080/payment/cancel",
		}, logger),
		Resolver:   resolver,
		Reconciler: service.NewAccessReconciler(store, store, store, resolver, logger),
		Catalog:    service.NewCatalogService(store, store, store, "XOF", logger),
	}
	for _, a := range []models.Article{
		{ID: "A1", Title: "EUR/USD weekly", Price: 500},
		{ID: "free", Title: "Intro", Price: 0},
	} {
		a := a
		require.NoError(t, store.UpsertArticle(context.Background(), &a))
	}
	return &testEnv{router: NewRouter(svc, cfg, probe, logger), store: store, gw: gw}
}

func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	claims := identityClaims{Email: subject + "@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func createBody(userID string) map[string]interface{} {
	return map[string]interface{}{
		"amount":      500,
		"description": "Paiement article",
		"articleId":   "A1",
		"userId":      userID,
		"customer":    map[string]string{"firstname": "Awa", "lastname": "Diop", "email": "awa@example.com"},
	}
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, nil)

	w := env.do(http.MethodPost, "/api/create-payment", createBody("U1"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["url"])
	assert.NotEmpty(t, body["transactionId"])
}

func TestCreatePayment_Errors(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, nil)

	cases := []struct {
		name string
		body interface{}
		code int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"missing article", map[string]interface{}{"userId": "U1"}, http.StatusBadRequest},
		{"unknown article", map[string]interface{}{"userId": "U1", "articleId": "ghost"}, http.StatusNotFound},
		{"free article", map[string]interface{}{"userId": "U1", "articleId": "free"}, http.StatusConflict},
		{"wrong amount", map[string]interface{}{"userId": "U1", "articleId": "A1", "amount": 1}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/create-payment", tc.body, "")
			assert.Equal(t, tc.code, w.Code, w.Body.String())
			assert.Equal(t, false, decodeBody(t, w)["success"])
		})
	}
}

func TestCreatePayment_GatewayDownIsServiceUnavailable(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, nil)
	env.gw.FailCreate(errors.New("dial tcp: connection refused"))

	req := httptest.NewRequest(http.MethodPost, "/api/create-payment?lang=en", bytes.NewReader(mustJSON(createBody("U1"))))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Payment service temporarily unavailable, please retry", body["error"])
}

func TestPaymentFlow_StatusReconcileAccess(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, nil)

	w := env.do(http.MethodPost, "/api/create-payment", createBody("U1"), "")
	require.Equal(t, http.StatusOK, w.Code)
	txID := decodeBody(t, w)["transactionId"].(string)

	w = env.do(http.MethodGet, "/api/transaction-status/"+txID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody(t, w)
	assert.Equal(t, "pending", status["status"])
	assert.Equal(t, "A1", status["articleId"])

	w = env.do(http.MethodPost, "/api/reconcile/A1", map[string]string{"userId": "U1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeBody(t, w)
	assert.Equal(t, "locked", out["state"])
	assert.Equal(t, true, out["retry"])

	ref, _ := env.gw.RefFor(txID)
	env.gw.SetStatus(ref, "approved", models.ModeMobileMoney)

	w = env.do(http.MethodPost, "/api/reconcile/A1?userId=U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	out = decodeBody(t, w)
	assert.Equal(t, "unlocked", out["state"])
	assert.Equal(t, txID, out["transactionId"])

	w = env.do(http.MethodGet, "/api/access/A1?userId=U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["unlocked"])

	w = env.do(http.MethodGet, "/api/payments?userId=U1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	payments := decodeBody(t, w)["payments"].([]interface{})
	require.Len(t, payments, 1)
	assert.Equal(t, "mobile_money", payments[0].(map[string]interface{})["method"])
}

func TestTransactionStatus_Unknown(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, nil)
	w := env.do(http.MethodGet, "/api/transaction-status/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconcile_RequiresUser(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, nil)
	w := env.do(http.MethodPost, "/api/reconcile/A1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/reconcile/ghost?userId=U1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth_TokenSubjectWins(t *testing.T) {
	env := newTestEnv(t, RouterConfig{JWTSecret: testSecret}, nil)

	w := env.do(http.MethodPost, "/api/create-payment", createBody("someone-else"), signToken(t, "U7"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	txID := decodeBody(t, w)["transactionId"].(string)

	tx, err := env.store.GetTransaction(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, "U7", tx.UserID)

	w = env.do(http.MethodGet, "/api/transaction-status/"+txID, nil, signToken(t, "U8"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/transaction-status/"+txID, nil, signToken(t, "U7"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Required(t *testing.T) {
	env := newTestEnv(t, RouterConfig{JWTSecret: testSecret, AuthRequired: true}, nil)

	w := env.do(http.MethodGet, "/api/article/A1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/article/A1", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "U1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	w = env.do(http.MethodGet, "/api/article/A1", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/article/A1", nil, signToken(t, "U1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(500), decodeBody(t, w)["price"])

	w = env.do(http.MethodGet, "/payment/success?article_id=A1&transaction_id=T1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "A1", body["articleId"])
	assert.Equal(t, "T1", body["transactionId"])
}

func TestCreatePayment_RateLimited(t *testing.T) {
	env := newTestEnv(t, RouterConfig{CreateRateRPS: 0.001, CreateRateBurst: 1}, nil)

	w := env.do(http.MethodPost, "/api/create-payment", createBody("U1"), "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/api/create-payment", createBody("U1"), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = env.do(http.MethodGet, "/api/article/A1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code, "only payment creation is limited")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", nil, "").Code)

	env = newTestEnv(t, RouterConfig{}, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/test", nil, "").Code)
}

func mustJSON(v interface{}) []byte {
	raw, _ := json.Marshal(v)
	return raw
}

func TestTransactions_History(t *testing.T) {
	env := newTestEnv(t, RouterConfig{JWTSecret: testSecret}, nil)

	w := env.do(http.MethodPost, "/api/create-payment", createBody("U1"), "")
	require.Equal(t, http.StatusOK, w.Code)
	txID := decodeBody(t, w)["transactionId"].(string)

	w = env.do(http.MethodGet, "/api/transactions", nil, signToken(t, "U1"))
	require.Equal(t, http.StatusOK, w.Code)
	txs := decodeBody(t, w)["transactions"].([]interface{})
	require.Len(t, txs, 1)
	tx := txs[0].(map[string]interface{})
	assert.Equal(t, txID, tx["transaction_id"])
	assert.Equal(t, "pending", tx["status"])

	w = env.do(http.MethodGet, "/api/transactions", nil, signToken(t, "U2"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["transactions"])

	w = env.do(http.MethodGet, "/api/transactions", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
