package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesOnCode(t *testing.T) {
	err := ErrArticleAlreadyPaid.WithData(map[string]string{"articleId": "A1"})
	wrapped := fmt.Errorf("create payment: %w", err)

	assert.True(t, errors.Is(wrapped, ErrArticleAlreadyPaid))
	assert.False(t, errors.Is(wrapped, ErrInvalidArticle))

	var appErr AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, map[string]string{"articleId": "A1"}, appErr.Data)
}

func TestNewErrorResponse_Localized(t *testing.T) {
	fr := NewErrorResponse(ErrGatewayUnavailable, "fr")
	en := NewErrorResponse(ErrGatewayUnavailable, "en")

	assert.False(t, fr.Success)
	assert.Equal(t, ErrGatewayUnavailable.Message.FR, fr.Error)
	assert.Equal(t, ErrGatewayUnavailable.Message.EN, en.Error)
	assert.Equal(t, -31060, en.Code)
}
