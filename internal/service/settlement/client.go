package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/metrics"
)

const (
	// The processor definitely did not create the transfer. Safe to revert
	CodeRejected = "rejected"

	// The outcome is unknown: timeout, 5xx or unreadable response. Must be reconciled
	CodeAmbiguous = "ambiguous"

	CodeNotFound = "not_found"
)

const (
	TransferPending = "pending"
	TransferPaid    = "paid"
	TransferFailed  = "failed"
)

// Metadata keys sent with every transfer and echoed back by the processor
const (
	MetadataWithdrawalID   = "withdrawal_id"
	MetadataWasherID       = "washer_id"
	MetadataIdempotencyKey = "idempotency_key"
)

const defaultTimeout = 10 * time.Second

type Error struct {
	Code       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("settlement %s (status %d): %v", e.Code, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, statusCode int, err error) *Error {
	return &Error{Code: code, StatusCode: statusCode, Err: err}
}

// Report whether err is a settlement error with the code
func IsCode(err error, code string) bool {
	var sErr *Error
	return errors.As(err, &sErr) && sErr.Code == code
}

type TransferRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Destination    string
	WithdrawalID   uuid.UUID
	WasherID       uuid.UUID
	IdempotencyKey string
}

type Transfer struct {
	ID             string            `json:"id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Destination    string            `json:"destination"`
	Status         string            `json:"status"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Withdrawal id the transfer was created for, if present in metadata
func (t Transfer) WithdrawalID() (uuid.UUID, bool) {
	id, err := uuid.Parse(t.Metadata[MetadataWithdrawalID])
	return id, err == nil
}

// Key of the call that created the transfer, empty if the processor did not echo it
func (t Transfer) IdempotencyKey() string {
	return t.Metadata[MetadataIdempotencyKey]
}

type Account struct {
	ID               string `json:"id"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	DisabledReason   string `json:"disabled_reason,omitempty"`
}

type Client struct {
	BaseURL string
	APIKey  string

	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, apiKey string, logger logger.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// Create transfer to the connected account
// Repeating the call with the same idempotency key returns the same transfer
func (c *Client) CreateTransfer(ctx context.Context, r TransferRequest) (Transfer, error) {
	body := struct {
		Amount      string            `json:"amount"`
		Currency    string            `json:"currency"`
		Destination string            `json:"destination"`
		Metadata    map[string]string `json:"metadata"`
	}{
		Amount:      r.Amount.StringFixed(2),
		Currency:    r.Currency,
		Destination: r.Destination,
		Metadata: map[string]string{
			MetadataWithdrawalID:   r.WithdrawalID.String(),
			MetadataWasherID:       r.WasherID.String(),
			MetadataIdempotencyKey: r.IdempotencyKey,
		},
	}

	var t Transfer
	err := c.do(ctx, "create_transfer", http.MethodPost, "/v1/transfers", r.IdempotencyKey, body, &t)
	return t, err
}

func (c *Client) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	var t Transfer
	err := c.do(ctx, "get_transfer", http.MethodGet, "/v1/transfers/"+url.PathEscape(id), "", nil, &t)
	return t, err
}

func (c *Client) GetAccount(ctx context.Context, id string) (Account, error) {
	var a Account
	err := c.do(ctx, "get_account", http.MethodGet, "/v1/accounts/"+url.PathEscape(id), "", nil, &a)
	return a, err
}

func (c *Client) do(ctx context.Context, operation string, method string, path string, idempotencyKey string, in any, out any) (err error) {
	defer func() {
		outcome := "ok"
		var sErr *Error
		if errors.As(err, &sErr) {
			outcome = sErr.Code
		}
		metrics.SettlementCalls.WithLabelValues(operation, outcome).Inc()
	}()

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return newError(CodeRejected, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return newError(CodeRejected, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Nothing reached the processor if the connection was never established
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return newError(CodeRejected, 0, fmt.Errorf("failed to connect: %w", err))
		}
		return newError(CodeAmbiguous, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode settlement response", "operation", operation, "error", err)
			return newError(CodeAmbiguous, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil

	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return newError(CodeNotFound, resp.StatusCode, fmt.Errorf("%s not found", path))

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("Settlement processor unavailable", "operation", operation, "status_code", resp.StatusCode)
		return newError(CodeAmbiguous, resp.StatusCode, fmt.Errorf("unexpected status code %d", resp.StatusCode))

	default:
		msg := readErrorMessage(resp.Body)
		c.logger.Info("Settlement processor refused request", "operation", operation, "status_code", resp.StatusCode, "message", msg)
		return newError(CodeRejected, resp.StatusCode, fmt.Errorf("status code %d: %s", resp.StatusCode, msg))
	}
}

func readErrorMessage(r io.Reader) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	if err := json.Unmarshal(b, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return string(b)
}
