package paystack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/membership-portal-go/apperrors"
)

func TestVerifyTransaction_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/T123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"id": 42,
				"reference": "T123",
				"status": "success",
				"amount": 500000,
				"currency": "NGN",
				"customer": {"email": "ada@example.com"},
				"metadata": {"custom_fields": [{"variable_name": "category", "value": "dues"}]}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", time.Second)
	tx, err := client.VerifyTransaction(context.Background(), "T123")
	require.NoError(t, err)

	assert.True(t, tx.Successful())
	assert.Equal(t, int64(500000), tx.Amount)
	assert.Equal(t, "ada@example.com", tx.Customer.Email)
	assert.Equal(t, "dues", ParseMetadata(tx.Metadata).Lookup("category"))
}

func TestVerifyTransaction_NotSuccessfulIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": true, "message": "ok", "data": {"reference": "T9", "status": "abandoned", "amount": 100}}`))
	}))
	defer srv.Close()

	tx, err := NewClient(srv.URL, "sk_test", time.Second).VerifyTransaction(context.Background(), "T9")
	require.NoError(t, err)
	assert.False(t, tx.Successful())
}

func TestVerifyTransaction_Errors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   error
	}{
		"unknown reference": {http.StatusBadRequest, `{"status": false, "message": "Transaction reference not found"}`, apperrors.ErrGatewayRejected},
		"envelope false":    {http.StatusOK, `{"status": false, "message": "Invalid key"}`, apperrors.ErrGatewayRejected},
		"server error":      {http.StatusBadGateway, `upstream down`, apperrors.ErrGatewayUnavailable},
		"garbage":           {http.StatusOK, `<html>`, apperrors.ErrGatewayUnavailable},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "sk_test", time.Second).VerifyTransaction(context.Background(), "T1")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVerifyTransaction_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, "sk_test", 50*time.Millisecond).VerifyTransaction(context.Background(), "T1")
	assert.ErrorIs(t, err, apperrors.ErrGatewayTimeout)
	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
}

func TestVerifyTransaction_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "sk_test", time.Second).VerifyTransaction(context.Background(), "T1")
	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	assert.NotErrorIs(t, err, apperrors.ErrGatewayTimeout)
}

func TestVerifyTransaction_Validation(t *testing.T) {
	_, err := NewClient("http://unused", "sk_test", time.Second).VerifyTransaction(context.Background(), " ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = NewClient("http://unused", "", time.Second).VerifyTransaction(context.Background(), "T1")
	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
}
