package utils

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
}

type PaymentSessionResponse struct {
	Success       bool   `json:"success"`
	URL           string `json:"url"`
	TransactionID string `json:"transactionId"`
}

func NewPaymentSessionResponse(url, transactionID string) PaymentSessionResponse {
	return PaymentSessionResponse{
		Success:       true,
		URL:           url,
		TransactionID: transactionID,
	}
}

func NewErrorResponse(err AppError, lang string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   err.Localized(lang),
		Code:    err.Code,
		Data:    err.Data,
	}
}
