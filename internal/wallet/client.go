// Package wallet is the narrow client for the external balance service. The
// engine only ever calls one operation: refund by idempotency reference.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/obikwelu/resulthawk/internal/config"
)

// Sentinel errors for wallet client failures.
var (
	ErrWalletUnreachable = errors.New("wallet service unreachable")
	ErrRefundRejected    = errors.New("wallet refused the refund")
)

// RefundResult reports how the wallet handled the request.
type RefundResult string

const (
	// RefundApplied means the balance was credited by this call.
	RefundApplied RefundResult = "applied"
	// RefundAlreadyApplied means the reference was seen before; the balance
	// was credited by an earlier call and nothing happened now.
	RefundAlreadyApplied RefundResult = "already_applied"
)

// Client is the interface for issuing refunds.
type Client interface {
	Refund(ctx context.Context, userID uuid.UUID, amount int64, reference string) (RefundResult, error)
}

// HTTPClient implements Client against the wallet service's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new wallet HTTP client.
func NewHTTPClient(cfg config.WalletConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type refundRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
}

type refundResponse struct {
	Status string `json:"status"`
}

// Refund credits amount back to the user's balance, keyed by reference. The
// wallet deduplicates by reference, so redelivery of the same reference is
// reported as already_applied rather than crediting twice.
func (c *HTTPClient) Refund(ctx context.Context, userID uuid.UUID, amount int64, reference string) (RefundResult, error) {
	body, err := json.Marshal(refundRequest{UserID: userID, Amount: amount, Reference: reference})
	if err != nil {
		return "", fmt.Errorf("encoding refund request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/refunds", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWalletUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return RefundAlreadyApplied, nil
	default:
		return "", fmt.Errorf("%w: status %d", ErrRefundRejected, resp.StatusCode)
	}

	var refundResp refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&refundResp); err != nil {
		return "", fmt.Errorf("decoding refund response: %w", err)
	}

	if refundResp.Status == "already_applied" {
		return RefundAlreadyApplied, nil
	}
	return RefundApplied, nil
}
