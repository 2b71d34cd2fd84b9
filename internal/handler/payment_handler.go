package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"azebot/internal/service"
	"azebot/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type PaymentHandler struct {
	payments   service.PaymentService
	resolver   service.StatusResolver
	reconciler service.AccessReconciler
	catalog    service.CatalogService
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewPaymentHandler(svc Services, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:   svc.Payments,
		resolver:   svc.Resolver,
		reconciler: svc.Reconciler,
		catalog:    svc.Catalog,
		validate:   validator.New(),
		logger:     logger,
	}
}

// RegisterRoutes mounts the API behind auth. The gateway return pages stay
// outside it since browsers arrive there without a token.
func (h *PaymentHandler) RegisterRoutes(router *gin.Engine, auth, createLimit gin.HandlerFunc) {
	router.GET("/api/test", h.handleTest)
	router.GET("/payment/success", h.handleReturn("success"))
	router.GET("/payment/cancel", h.handleReturn("cancel"))

	api := router.Group("/api", auth)
	api.POST("/create-payment", createLimit, h.handleCreatePayment)
	api.GET("/transaction-status/:transactionId", h.handleTransactionStatus)
	api.POST("/reconcile/:articleId", h.handleReconcile)
	api.GET("/access/:articleId", h.handleAccess)
	api.GET("/article/:id", h.handleArticle)
	api.GET("/payments", h.handlePayments)
	api.GET("/transactions", h.handleTransactions)
}

func (h *PaymentHandler) handleCreatePayment(c *gin.Context) {
	var params service.CreatePaymentParams
	if err := h.decode(c.Request.Body, &params); err != nil {
		h.sendError(c, err)
		return
	}
	if id, ok := identityFrom(c); ok {
		params.UserID = id.UserID
		if params.Customer.Email == "" {
			params.Customer.Email = id.Email
		}
	}
	if err := h.validate.Struct(params); err != nil {
		h.sendError(c, utils.ErrInvalidParams.WithData(err.Error()))
		return
	}

	result, err := h.payments.CreatePayment(c.Request.Context(), params)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewPaymentSessionResponse(result.CheckoutURL, result.TransactionID))
}

func (h *PaymentHandler) handleTransactionStatus(c *gin.Context) {
	res, err := h.resolver.Resolve(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	// Someone else's transaction is reported as missing.
	if id, ok := identityFrom(c); ok && id.UserID != res.UserID {
		h.sendError(c, utils.ErrTransactionNotFound)
		return
	}
	c.JSON(http.StatusOK, res)
}

type reconcileRequest struct {
	UserID string `json:"userId"`
}

func (h *PaymentHandler) handleReconcile(c *gin.Context) {
	var req reconcileRequest
	if c.Request.ContentLength > 0 {
		if err := h.decode(c.Request.Body, &req); err != nil {
			h.sendError(c, err)
			return
		}
	}
	if req.UserID == "" {
		req.UserID = c.Query("userId")
	}
	userID, err := h.userID(c, req.UserID)
	if err != nil {
		h.sendError(c, err)
		return
	}

	out, err := h.reconciler.Reconcile(c.Request.Context(), c.Param("articleId"), userID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) handleAccess(c *gin.Context) {
	userID, err := h.userID(c, c.Query("userId"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	articleID := c.Param("articleId")
	ok, err := h.reconciler.Access(c.Request.Context(), articleID, userID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articleId": articleID, "unlocked": ok})
}

func (h *PaymentHandler) handleArticle(c *gin.Context) {
	article, err := h.catalog.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *PaymentHandler) handlePayments(c *gin.Context) {
	userID, err := h.userID(c, c.Query("userId"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	payments, err := h.catalog.ListPayments(c.Request.Context(), userID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *PaymentHandler) handleTransactions(c *gin.Context) {
	userID, err := h.userID(c, c.Query("userId"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	txs, err := h.catalog.ListTransactions(c.Request.Context(), userID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *PaymentHandler) handleTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "backend reachable"})
}

// handleReturn serves the pages the gateway redirects back to. They only echo
// the references; unlocking happens through reconcile.
func (h *PaymentHandler) handleReturn(page string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"page":          page,
			"articleId":     c.Query("article_id"),
			"transactionId": c.Query("transaction_id"),
		})
	}
}

func (h *PaymentHandler) userID(c *gin.Context, fallback string) (string, error) {
	if id, ok := identityFrom(c); ok {
		return id.UserID, nil
	}
	if fallback == "" {
		return "", utils.ErrInvalidParams.WithData("userId")
	}
	return fallback, nil
}

func (h *PaymentHandler) decode(body io.Reader, target interface{}) error {
	raw, err := io.ReadAll(body)
	if err != nil || len(raw) == 0 || json.Unmarshal(raw, target) != nil {
		return utils.ErrInvalidParams
	}
	return nil
}

func (h *PaymentHandler) sendError(c *gin.Context, err error) {
	var appErr utils.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("unhandled internal error", "path", c.FullPath(), "error", err)
		appErr = utils.ErrInternalServer
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, utils.NewErrorResponse(appErr, language(c)))
}

func language(c *gin.Context) string {
	if lang := c.Query("lang"); lang != "" {
		return lang
	}
	if strings.HasPrefix(strings.ToLower(c.GetHeader("Accept-Language")), "en") {
		return "en"
	}
	return "fr"
}
