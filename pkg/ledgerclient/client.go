/**
 * @description
 * This package provides a client for the token-ledger transfer service. It
 * submits atomic transfer batches signed with escrow or wallet authorities and
 * reads available balances per asset.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the token-ledger API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new ledger API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TransferLeg is one movement inside an atomic batch. Authority is the
// credential that authorizes debiting Source.
type TransferLeg struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	Authority   string `json:"authority"`
}

// BatchTransferRequest is the payload for an atomic transfer batch.
// The ledger applies every leg or none.
type BatchTransferRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Reason string        `json:"reason"`
			Legs   []TransferLeg `json:"legs"`
		} `json:"attributes"`
	} `json:"data"`
}

// BatchTransferResponse is the ledger's answer to a committed batch.
type BatchTransferResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// BalanceResponse represents the balance of one asset in one account.
type BalanceResponse struct {
	Data struct {
		AvailableBalance uint64 `json:"availableBalance"`
		LedgerBalance    uint64 `json:"ledgerBalance"`
		Hold             uint64 `json:"hold"`
	} `json:"data"`
}

// ErrorResponse represents an error from the ledger API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("ledger api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown ledger api error"
}

// ExecuteBatch submits legs as one atomic batch. Replaying the same
// idempotencyKey returns the original result instead of moving funds twice.
func (c *Client) ExecuteBatch(ctx context.Context, idempotencyKey, reason string, legs []TransferLeg) (*BatchTransferResponse, error) {
	reqPayload := BatchTransferRequest{}
	reqPayload.Data.Type = "TransferBatch"
	reqPayload.Data.Attributes.Reason = reason
	reqPayload.Data.Attributes.Legs = legs

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/transfers/batch", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	req.Header.Set("x-ledger-key", c.APIKey)

	var resp BatchTransferResponse
	if err := c.do(req, "execute_batch", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAvailableBalance returns the available balance of asset held by accountID.
func (c *Client) GetAvailableBalance(ctx context.Context, accountID, asset string) (uint64, error) {
	endpoint := c.BaseURL + "/api/v1/accounts/" + url.PathEscape(accountID) + "/balances/" + url.PathEscape(asset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create balance request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ledger-key", c.APIKey)

	var resp BalanceResponse
	if err := c.do(req, "get_balance", &resp); err != nil {
		return 0, err
	}
	return resp.Data.AvailableBalance, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=ledger_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=ledger_client op=%s status=%d title=%q detail=%q", op, resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
