package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/gateway"
)

func newHTTPClient(srv *httptest.Server) *gateway.HTTPClient {
	return gateway.NewHTTPClient(gateway.HTTPConfig{BaseURL: srv.URL}, nil)
}

func TestHTTPClient_CreatePayment(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transactionKey": "tx-1",
			"status":         "pending",
		})
	}))
	defer srv.Close()

	client := newHTTPClient(srv)
	result, err := client.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		OrderNo:        "order-1",
		UserID:         "user-1",
		AmountMinor:    1800,
		CardDescriptor: "visa **** 4242",
		CallbackURL:    "http://localhost:8080/payments/callback",
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if result.TransactionKey != "tx-1" || result.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected result: %+v", result)
	}

	if received["orderId"] != "order-1" {
		t.Fatalf("expected orderId in request body, got %v", received["orderId"])
	}
	if received["amount"] != float64(1800) {
		t.Fatalf("expected amount 1800, got %v", received["amount"])
	}
	if received["callbackUrl"] != "http://localhost:8080/payments/callback" {
		t.Fatalf("expected callbackUrl in request body, got %v", received["callbackUrl"])
	}
}

func TestHTTPClient_GetPaymentInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/tx-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("userId") != "user-1" {
			t.Errorf("expected userId query param, got %q", r.URL.Query().Get("userId"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transactionKey": "tx-1",
			"status":         "success",
		})
	}))
	defer srv.Close()

	client := newHTTPClient(srv)
	result, err := client.GetPaymentInfo(context.Background(), "tx-1", "user-1")
	if err != nil {
		t.Fatalf("get payment info failed: %v", err)
	}
	if result.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected success status, got %s", result.Status)
	}
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	cases := []struct {
		code     int
		body     string
		declined bool
		temp     bool
	}{
		{http.StatusPaymentRequired, `{}`, true, false},
		{http.StatusBadRequest, `{}`, true, false},
		{http.StatusInternalServerError, `{}`, false, true},
		{http.StatusBadGateway, `{}`, false, true},
		{http.StatusOK, `{"status":"unexpected"}`, false, true},
		{http.StatusOK, `not json`, false, true},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
			_, _ = w.Write([]byte(tc.body))
		}))

		client := newHTTPClient(srv)
		_, err := client.GetPaymentInfo(context.Background(), "tx-1", "user-1")
		srv.Close()

		if err == nil {
			t.Fatalf("expected error for code %d body %q", tc.code, tc.body)
		}
		if tc.declined && !errors.Is(err, domain.ErrPaymentDeclined) {
			t.Fatalf("expected declined for code %d, got %v", tc.code, err)
		}
		if tc.temp && !domain.IsRetryable(err) {
			t.Fatalf("expected temporary error for code %d body %q, got %v", tc.code, tc.body, err)
		}
	}
}

func TestHTTPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // соединение сразу отклоняется

	client := newHTTPClient(srv)
	_, err := client.CreatePayment(context.Background(), domain.CreatePaymentRequest{OrderNo: "order-1"})
	if !domain.IsRetryable(err) {
		t.Fatalf("expected temporary transport error, got %v", err)
	}
}
