package appstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// ProductionURL is the production receipt-verification endpoint.
	ProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	// SandboxURL is the sandbox receipt-verification endpoint.
	SandboxURL = "https://sandbox.itunes.apple.com/verifyReceipt"
)

// ErrVerifyUnavailable wraps every failure to obtain a verdict from the
// verification servers. Transport errors and malformed response bodies
// collapse into this one kind; callers cannot tell them apart.
var ErrVerifyUnavailable = errors.New("appstore: verification unavailable")

// Config carries the construction parameters for a Client. Zero values fall
// back to the real endpoints and a 30s timeout.
type Config struct {
	ReceiptPath   string
	ProductionURL string
	SandboxURL    string
	Timeout       time.Duration
}

// Client validates locally stored purchase receipts against the remote
// verification service.
type Client struct {
	httpClient    *http.Client
	receiptPath   string
	productionURL string
	sandboxURL    string
	debug         bool
}

// NewClient constructs a receipt-validation client with sane defaults.
func NewClient(cfg Config) *Client {
	if cfg.ProductionURL == "" {
		cfg.ProductionURL = ProductionURL
	}
	if cfg.SandboxURL == "" {
		cfg.SandboxURL = SandboxURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		receiptPath:   cfg.ReceiptPath,
		productionURL: cfg.ProductionURL,
		sandboxURL:    cfg.SandboxURL,
		debug:         os.Getenv("ENV") == "development",
	}
}

// Validate reads the local receipt blob and verifies it against the
// production endpoint. When production reports the receipt belongs to the
// sandbox environment (status 21007), the sandbox endpoint is tried once and
// that result is returned; there is no further fallback.
//
// A missing receipt is a valid state, reported as StatusNoReceipt with a nil
// error and no network call. A non-nil error means no verdict was reached.
//
// password is the app's shared secret, only needed for receipts containing
// auto-renewable subscriptions.
func (c *Client) Validate(ctx context.Context, password string) (*ValidationResult, error) {
	body, ok := c.receiptBody(password)
	if !ok {
		return &ValidationResult{Status: StatusNoReceipt}, nil
	}

	result, err := c.verify(ctx, c.productionURL, body)
	if err != nil {
		return nil, err
	}
	if result.Status == StatusSandboxReceipt {
		log.Debug().Msg("[APPSTORE] Sandbox receipt rejected by production, retrying against sandbox")
		return c.verify(ctx, c.sandboxURL, body)
	}
	return result, nil
}

// verify performs one POST against a single endpoint and parses the verdict.
func (c *Client) verify(ctx context.Context, url string, body []byte) (*ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrVerifyUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifyUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrVerifyUnavailable, err)
	}

	if c.debug {
		log.Debug().
			Str("endpoint", url).
			Int("status_code", resp.StatusCode).
			RawJSON("response", respBody).
			Msg("[APPSTORE] Verification response")
	}

	var parsed verifyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrVerifyUnavailable, err)
	}

	return &ValidationResult{
		Status:   parsed.Status,
		Products: ParseReceiptInfo(parsed.LatestReceiptInfo),
		Raw:      respBody,
	}, nil
}

// receiptBody loads the local receipt blob and wraps it into the request
// body. ok is false when no usable receipt exists, which includes any read
// failure: an unreadable receipt and an absent one are the same state to the
// verification flow.
func (c *Client) receiptBody(password string) ([]byte, bool) {
	blob, err := os.ReadFile(c.receiptPath)
	if err != nil {
		return nil, false
	}

	body, err := json.Marshal(verifyRequest{
		ReceiptData: base64.StdEncoding.EncodeToString(blob),
		Password:    password,
	})
	if err != nil {
		log.Error().Err(err).Msg("[APPSTORE] Failed to build verification request body")
		return nil, false
	}
	return body, true
}
