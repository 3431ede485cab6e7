package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrWindowWaitExceeded))
	assert.True(t, IsFatal(ErrBudgetLockTimeout))
	assert.True(t, IsFatal(fmt.Errorf("acquire: %w", ErrWindowWaitExceeded)), "wrapped sentinels stay fatal")
	assert.False(t, IsFatal(ErrPostcodeTooShort))
	assert.False(t, IsFatal(errors.New("connection reset")))
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDatabaseError("read fetch marker", cause)

	assert.ErrorIs(t, err, cause)

	var typed *Error
	assert.ErrorAs(t, fmt.Errorf("fetch: %w", err), &typed)
	assert.Equal(t, CategoryDatabase, typed.Category)
	assert.Contains(t, err.Error(), "read fetch marker")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("search", "missing query"), http.StatusBadRequest},
		{"provider", NewProviderError("autocomplete", errors.New("503")), http.StatusBadGateway},
		{"database", NewDatabaseError("load roads", errors.New("down")), http.StatusInternalServerError},
		{"cache", NewCacheError("read lookup entry", errors.New("down")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
