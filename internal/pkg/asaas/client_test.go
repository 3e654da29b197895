package asaas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/riderfin/riderfin/internal/pkg/billing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := &Client{
		BaseURL:    srv.URL,
		APIKey:     "key_test",
		HTTPClient: srv.Client(),
	}
	return c, srv
}

func TestCreateCustomer(t *testing.T) {
	var gotPath, gotToken, gotAgent string
	var gotBody map[string]string

	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("access_token")
		gotAgent = r.Header.Get("User-Agent")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "cus_123"})
	})
	defer srv.Close()

	id, err := c.CreateCustomer(context.Background(), "Rider One", "rider@example.com", "12345678901")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "cus_123" {
		t.Fatalf("expected cus_123, got %s", id)
	}
	if gotPath != "/customers" {
		t.Fatalf("expected /customers, got %s", gotPath)
	}
	if gotToken != "key_test" {
		t.Fatalf("expected api key header, got %q", gotToken)
	}
	if gotAgent != "RiderFinance/1.0" {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
	if gotBody["cpfCnpj"] != "12345678901" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
}

func TestCreateSubscription(t *testing.T) {
	var gotBody map[string]interface{}

	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "sub_123", "status": "ACTIVE"})
	})
	defer srv.Close()

	plan, err := billing.GetPlan("pro")
	if err != nil {
		t.Fatalf("plan lookup failed: %v", err)
	}

	id, err := c.CreateSubscription(context.Background(), "cus_123", plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sub_123" {
		t.Fatalf("expected sub_123, got %s", id)
	}
	if gotBody["customer"] != "cus_123" {
		t.Fatalf("unexpected customer: %v", gotBody["customer"])
	}
	if gotBody["cycle"] != plan.BillingCycle {
		t.Fatalf("unexpected cycle: %v", gotBody["cycle"])
	}
	if gotBody["value"] != plan.Price {
		t.Fatalf("unexpected value: %v", gotBody["value"])
	}
	due, ok := gotBody["nextDueDate"].(string)
	if !ok {
		t.Fatalf("missing nextDueDate")
	}
	if _, err := time.Parse("2006-01-02", due); err != nil {
		t.Fatalf("nextDueDate not a date: %q", due)
	}
}

func TestGetPayment(t *testing.T) {
	var gotPath string

	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":           "pay_123",
			"subscription": "sub_123",
			"status":       "RECEIVED",
			"value":        19.9,
			"dueDate":      "2026-09-29",
		})
	})
	defer srv.Close()

	p, err := c.GetPayment(context.Background(), "pay_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/payments/pay_123" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if p.Subscription != "sub_123" || p.Status != "RECEIVED" || p.Value != 19.9 {
		t.Fatalf("unexpected payment: %+v", p)
	}
}

func TestCancelSubscription(t *testing.T) {
	var gotMethod, gotPath string

	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"deleted":true}`))
	})
	defer srv.Close()

	if err := c.CancelSubscription(context.Background(), "sub_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/subscriptions/sub_123" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
}

func TestAPIErrorIsSurfaced(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":"invalid_creditCard","description":"Cartao invalido"}]}`))
	})
	defer srv.Close()

	_, err := c.CreateCustomer(context.Background(), "Rider", "rider@example.com", "123")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "Cartao invalido") {
		t.Fatalf("expected provider description in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestOpaqueErrorBody(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("gateway exploded"))
	})
	defer srv.Close()

	err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	c := &Client{BaseURL: "http://localhost:1", HTTPClient: http.DefaultClient}
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected configuration error without api key")
	}
}
