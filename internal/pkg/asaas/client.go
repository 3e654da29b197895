// Package asaas is the outbound HTTP client for the Asaas payment provider.
// It implements billing.Gateway; retry policy stays with the caller.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/riderfin/riderfin/internal/pkg/billing"
	"github.com/riderfin/riderfin/internal/pkg/env"
)

const defaultBaseURL = "https://sandbox.asaas.com/api/v3"

type Client struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from ASAAS_* environment settings.
func NewClientFromEnv() *Client {
	baseURL := strings.TrimRight(env.GetEnv("ASAAS_BASE_URL", defaultBaseURL), "/")
	c := &Client{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(env.GetEnv("ASAAS_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	envType := "PRODUCTION"
	if strings.Contains(baseURL, "sandbox") {
		envType = "SANDBOX"
	}
	log.Infof("[Asaas] client initialized, environment: %s", envType)
	return c
}

type apiError struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	if c.APIKey == "" {
		return errors.New("ASAAS_API_KEY is not configured")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	url := c.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("access_token", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RiderFinance/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("asaas request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Infof("[Asaas] %s %s - status %d", method, endpoint, resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var ae apiError
		if err := json.Unmarshal(raw, &ae); err == nil && len(ae.Errors) > 0 {
			return fmt.Errorf("asaas error (%d): %s", resp.StatusCode, ae.Errors[0].Description)
		}
		return fmt.Errorf("asaas error (%d)", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

type customerResponse struct {
	ID string `json:"id"`
}

type subscriptionResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	NextDueDate string `json:"nextDueDate"`
}

// CreateCustomer creates a customer on the provider and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, name, email, cpfCnpj string) (string, error) {
	payload := map[string]string{
		"name":    name,
		"email":   email,
		"cpfCnpj": cpfCnpj,
	}
	var out customerResponse
	if err := c.doRequest(ctx, http.MethodPost, "customers", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("asaas returned an empty customer id")
	}
	return out.ID, nil
}

// CreateSubscription creates a recurring subscription and returns its id.
func (c *Client) CreateSubscription(ctx context.Context, customerID string, plan billing.Plan) (string, error) {
	payload := map[string]interface{}{
		"customer":    customerID,
		"billingType": "CREDIT_CARD",
		"value":       plan.Price,
		"cycle":       plan.BillingCycle,
		"description": fmt.Sprintf("RiderFinance %s", plan.Name),
		"nextDueDate": time.Now().Add(plan.CycleLength).Format("2006-01-02"),
	}
	var out subscriptionResponse
	if err := c.doRequest(ctx, http.MethodPost, "subscriptions", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("asaas returned an empty subscription id")
	}
	return out.ID, nil
}

// Payment is the provider's view of a single charge.
type Payment struct {
	ID           string  `json:"id"`
	Subscription string  `json:"subscription"`
	Status       string  `json:"status"`
	Value        float64 `json:"value"`
	DueDate      string  `json:"dueDate"`
}

// GetPayment fetches one payment, used to reconcile a notification against
// the provider's current state.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.doRequest(ctx, http.MethodGet, "payments/"+paymentID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSubscription cancels a subscription on the provider.
func (c *Client) CancelSubscription(ctx context.Context, asaasSubscriptionID string) error {
	endpoint := "subscriptions/" + asaasSubscriptionID
	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Health checks connectivity by listing a single customer.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "customers?limit=1", nil, nil)
}
