package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/enrollment"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/orchestrator"
)

func TestStatusOKWithData(t *testing.T) {
	data := map[string]string{"key": "value"}
	resp := StatusOKWithData(data)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, data, resp.Data)
}

func TestError(t *testing.T) {
	resp := Error("something went wrong")

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "something went wrong", resp.Error)
}

func TestValidationError(t *testing.T) {
	type TestStruct struct {
		PlanType string `validate:"required"`
		Code     string `validate:"numeric"`
		Name     string `validate:"max=3"`
	}

	err := validator.New().Struct(TestStruct{Code: "abc", Name: "toolong"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "field PlanType is a required field")
	assert.Contains(t, resp.Error, "field Code can contain only numbers")
	assert.Contains(t, resp.Error, "field Name must be at most 3")
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "illegal transition",
			err:        fmt.Errorf("op: %w", orchestrator.ErrIllegalTransition),
			wantStatus: http.StatusConflict,
			wantMsg:    "This action is not available for your current subscription.",
		},
		{
			name:       "orchestrator busy",
			err:        orchestrator.ErrOperationInProgress,
			wantStatus: http.StatusConflict,
			wantMsg:    "Another operation is already in progress.",
		},
		{
			name:       "enrollment busy",
			err:        enrollment.ErrOperationInProgress,
			wantStatus: http.StatusConflict,
			wantMsg:    "fallback",
		},
		{
			name:       "card incomplete",
			err:        checkout.ErrCardInputInvalid,
			wantStatus: http.StatusPaymentRequired,
			wantMsg:    "Please complete your card details.",
		},
		{
			name:       "card declined",
			err:        &checkout.TokenizationError{Message: "Your card was declined."},
			wantStatus: http.StatusPaymentRequired,
			wantMsg:    "Your card was declined.",
		},
		{
			name:       "confirmation failed",
			err:        &checkout.ConfirmationFailedError{Message: "Authentication required."},
			wantStatus: http.StatusPaymentRequired,
			wantMsg:    "Authentication required.",
		},
		{
			name:       "server rejected keeps message",
			err:        &apiclient.ServerRejectedError{StatusCode: 400, Message: "Plan not found"},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Plan not found",
		},
		{
			name:       "unauthenticated",
			err:        apiclient.ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Your session has expired. Please sign in again.",
		},
		{
			name:       "provider down",
			err:        &paymentprovider.ProviderError{Code: "provider_unavailable", Message: "down", Err: paymentprovider.ErrUnavailable},
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "fallback",
		},
		{
			name:       "transport",
			err:        fmt.Errorf("op: %w", apiclient.ErrTransport),
			wantStatus: http.StatusBadGateway,
			wantMsg:    "fallback",
		},
		{
			name:       "no session",
			err:        orchestrator.ErrNoActiveSession,
			wantStatus: http.StatusNotFound,
			wantMsg:    "fallback",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := FromError(tt.err, "fallback")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}
