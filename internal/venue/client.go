// Package venue is the HTTP client for the off-chain matching service. It
// submits signed orders and interprets the accepted-versus-matched response;
// the matching algorithm itself lives entirely on the remote side.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Config holds venue connection settings.
type Config struct {
	BaseURL string
	Auth    HMACAuth
	Timeout time.Duration
}

// Client talks to the venue's order-intake endpoints. Submission is
// idempotent on order id: the venue treats a resubmitted id as the same
// order, so retries after a transient failure are safe.
type Client struct {
	baseURL string
	auth    HMACAuth
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		auth:    cfg.Auth,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "venue")),
	}
}

// Submit posts a signed order. The result is either Accepted (resting in the
// book) or Matched with the counterparty's fill attached. Transient failures
// come back as ErrVenueUnavailable and may be retried by the caller;
// ErrRejectedByVenue is terminal for this order as signed.
func (c *Client) Submit(ctx context.Context, order domain.Order) (domain.SubmitResult, error) {
	if order.Signature == "" {
		return domain.SubmitResult{}, fmt.Errorf("venue: submit: %w: order %s is unsigned",
			domain.ErrInvalidOrderParams, order.ID)
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/orders", toOrderPayload(order), &resp); err != nil {
		return domain.SubmitResult{}, err
	}
	if !resp.Success {
		return domain.SubmitResult{}, fmt.Errorf("venue: submit: %w: %s", domain.ErrRejectedByVenue, resp.Error)
	}

	if !resp.Matched {
		c.logger.InfoContext(ctx, "order resting in book", slog.String("order_id", order.ID))
		return domain.SubmitResult{Outcome: domain.SubmitAccepted, OrderID: order.ID}, nil
	}

	if resp.OnChainExecution == nil {
		return domain.SubmitResult{}, fmt.Errorf("venue: submit: %w: matched response missing execution payload",
			domain.ErrRejectedByVenue)
	}
	fill, err := toMatchedFill(order, resp.OnChainExecution)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	c.logger.InfoContext(ctx, "order matched",
		slog.String("order_id", order.ID),
		slog.String("maker_order_id", fill.MakerOrder.ID),
		slog.String("fill_amount", domain.FormatTicks(fill.FillAmountTicks)),
	)
	return domain.SubmitResult{Outcome: domain.SubmitMatched, OrderID: order.ID, Fill: &fill}, nil
}

// BackfillSignature persists a maker's on-chain signature to the venue so
// later fills of the same resting order do not re-request it.
func (c *Client) BackfillSignature(ctx context.Context, orderID, signature string) error {
	path := "/orders/" + orderID + "/signature"
	if err := c.do(ctx, http.MethodPatch, path, signaturePatch{Signature: signature}, nil); err != nil {
		return fmt.Errorf("venue: backfill signature for %s: %w", orderID, err)
	}
	c.logger.InfoContext(ctx, "maker signature backfilled", slog.String("order_id", orderID))
	return nil
}

// do runs one JSON request. Network errors and 5xx map to
// ErrVenueUnavailable, 429 to ErrRateLimited, and other 4xx to
// ErrRejectedByVenue with the venue's message attached.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("venue: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("venue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth.Configured() {
		for k, v := range c.auth.Headers(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("venue: %s %s: %w: %v", method, path, domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("venue: %s %s: read response: %w", method, path, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("venue: %s %s: %w: status %d", method, path, domain.ErrVenueUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("venue: %s %s: %w", method, path, domain.ErrRateLimited)
	case resp.StatusCode >= 400:
		return fmt.Errorf("venue: %s %s: %w: status %d: %s",
			method, path, domain.ErrRejectedByVenue, resp.StatusCode, venueMessage(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("venue: %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// venueMessage pulls the error field out of an error body, falling back to
// the raw text.
func venueMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
