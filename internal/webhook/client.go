package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/config"
)

const (
	HeaderSignature = "X-Photoflow-Signature"
	HeaderTimestamp = "X-Photoflow-Timestamp"
	HeaderEvent     = "X-Photoflow-Event"
)

const (
	EventEditCompleted = "edit.completed"
	EventEditFailed    = "edit.failed"
)

// EditEvent is the body posted when an edit job reaches a final state.
type EditEvent struct {
	JobID         string    `json:"job_id"`
	PhotoID       string    `json:"photo_id"`
	Status        string    `json:"status"`
	ResultPhotoID string    `json:"result_photo_id,omitempty"`
	ResultURL     string    `json:"result_url,omitempty"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// StatusError is a non-2xx answer from the receiver.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook receiver answered %d", e.Code)
}

// retryable reports whether another attempt could succeed. Client errors
// other than 408 and 429 mean the receiver rejected the delivery itself.
func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// Client posts HMAC-signed JSON events with exponential backoff.
type Client struct {
	http    *http.Client
	secret  []byte
	retries int
	backoff time.Duration
	ceiling time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.WebhookConfig) *Client {
	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		secret:  []byte(cfg.SigningSecret),
		retries: max(1, cfg.MaxAttempts),
		backoff: cfg.InitialBackoff,
		ceiling: cfg.MaxBackoff,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	if c.http.Timeout <= 0 {
		c.http.Timeout = 10 * time.Second
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	if c.ceiling < c.backoff {
		c.ceiling = c.backoff
	}
	return c
}

// Send posts payload to endpoint. Network failures and 5xx/408/429 answers
// are retried; other 4xx answers stop immediately. An empty endpoint is a
// no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	timestamp := strconv.FormatInt(c.now().UTC().Unix(), 10)
	signature := Sign(string(c.secret), timestamp, body)

	wait := c.backoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = c.post(ctx, endpoint, event, timestamp, signature, body)
		if lastErr == nil {
			return nil
		}

		var serr *StatusError
		if errors.As(lastErr, &serr) && !serr.retryable() {
			return fmt.Errorf("webhook rejected: %w", lastErr)
		}
		if attempt >= c.retries {
			return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempt, lastErr)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
		wait = min(wait*2, c.ceiling)
	}
}

func (c *Client) post(ctx context.Context, endpoint, event, timestamp, signature string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "photoflow-webhook/1")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Sign computes the signature header value, "sha256=<hex>", over
// "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body. Receivers use it to
// authenticate deliveries.
func Verify(secret, timestamp, signature string, body []byte) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
