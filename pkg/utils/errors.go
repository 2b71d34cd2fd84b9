package utils

import "net/http"

type MultilingualMessage struct {
	EN string `json:"en"`
	FR string `json:"fr"`
}

type AppError struct {
	Code       int                 `json:"code"`
	HTTPStatus int                 `json:"-"`
	Message    MultilingualMessage `json:"message"`
	Data       interface{}         `json:"data,omitempty"`
}

func (e AppError) Error() string {
	return e.Message.EN
}

// Is matches on Code so that errors carrying Data still compare equal to the sentinels.
func (e AppError) Is(target error) bool {
	t, ok := target.(AppError)
	return ok && t.Code == e.Code
}

func (e AppError) WithData(data interface{}) AppError {
	e.Data = data
	return e
}

// Localized returns the message for the given language, defaulting to French.
func (e AppError) Localized(lang string) string {
	if lang == "en" {
		return e.Message.EN
	}
	return e.Message.FR
}

var (
	ErrInvalidAmount = AppError{Code: -31001, HTTPStatus: http.StatusBadRequest, Message: MultilingualMessage{
		EN: "Amount does not match the article price",
		FR: "Le montant ne correspond pas au prix de l'article"},
	}

	ErrTransactionNotFound = AppError{Code: -31003, HTTPStatus: http.StatusNotFound, Message: MultilingualMessage{
		EN: "Transaction not found",
		FR: "Transaction introuvable"},
	}

	ErrInvalidArticle = AppError{Code: -31050, HTTPStatus: http.StatusNotFound, Message: MultilingualMessage{
		EN: "Article not found or not payable",
		FR: "Article introuvable ou non payant"},
		Data: "article",
	}

	ErrArticleAlreadyPaid = AppError{Code: -31051, HTTPStatus: http.StatusConflict, Message: MultilingualMessage{
		EN: "Article is already unlocked",
		FR: "Article déjà débloqué"},
	}

	ErrGatewayUnavailable = AppError{Code: -31060, HTTPStatus: http.StatusServiceUnavailable, Message: MultilingualMessage{
		EN: "Payment service temporarily unavailable, please retry",
		FR: "Service de paiement momentanément indisponible, veuillez réessayer"},
	}

	ErrGatewayRejected = AppError{Code: -31061, HTTPStatus: http.StatusBadGateway, Message: MultilingualMessage{
		EN: "Payment session could not be created",
		FR: "Impossible de créer la session de paiement"},
	}

	ErrUnauthorized = AppError{Code: -32504, HTTPStatus: http.StatusUnauthorized, Message: MultilingualMessage{
		EN: "Invalid authorization",
		FR: "Autorisation invalide"},
	}

	ErrTooManyRequests = AppError{Code: -32505, HTTPStatus: http.StatusTooManyRequests, Message: MultilingualMessage{
		EN: "Too many payment attempts, slow down",
		FR: "Trop de tentatives de paiement, veuillez patienter"},
	}

	ErrInvalidParams = AppError{Code: -32602, HTTPStatus: http.StatusBadRequest, Message: MultilingualMessage{
		EN: "Invalid params",
		FR: "Paramètres invalides"},
	}

	ErrInternalServer = AppError{Code: -32603, HTTPStatus: http.StatusInternalServerError, Message: MultilingualMessage{
		EN: "Internal server error",
		FR: "Erreur interne du serveur"},
	}
)
