package notifications

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
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// SignatureHeader carries "sha256=<hex hmac>" when a secret is configured
const SignatureHeader = "X-Signature-256"

const (
	defaultRetryInterval = 500 * time.Millisecond
	maxResponseBody      = 10 * 1024
)

// WebhookHandler posts each matching record as signed JSON
type WebhookHandler struct {
	target config.WebhookTarget
	client *http.Client
	logger *zap.Logger

	retryInterval time.Duration
}

// NewWebhookHandler creates a handler for one webhook target
func NewWebhookHandler(target config.WebhookTarget, logger *zap.Logger) (*WebhookHandler, error) {
	if err := validateURL(target.URL); err != nil {
		return nil, fmt.Errorf("webhook %s: %w", target.Name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookHandler{
		target: target,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:        logger.Named("webhook").With(zap.String("target", target.Name)),
		retryInterval: defaultRetryInterval,
	}, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// Name is the observer name
func (h *WebhookHandler) Name() string {
	return "webhook-" + h.target.Name
}

// Predicate selects the configured topics
func (h *WebhookHandler) Predicate() observer.Predicate {
	return observer.MatchAnyOf(h.target.Topics...)
}

// Handle delivers one record. Transport errors, 429 and 5xx answers are
// retried with exponential backoff; other non-2xx answers fail at once.
func (h *WebhookHandler) Handle(ctx context.Context, tx types.ClassifiedTransaction, block types.BlockContext) error {
	body, err := json.Marshal(newPayload(tx, block))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	attempts := 0
	op := func() error {
		attempts++
		return h.post(ctx, tx, body)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = h.retryInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, h.target.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		h.logger.Debug("Webhook delivery failed, retrying",
			zap.String("txID", tx.ID),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("webhook %s after %d attempts: %w", h.target.Name, attempts, err)
	}

	h.logger.Debug("Webhook delivered",
		zap.String("txID", tx.ID),
		zap.Uint64("block", block.Number),
		zap.Int("attempts", attempts))
	return nil
}

func (h *WebhookHandler) post(ctx context.Context, tx types.ClassifiedTransaction, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.target.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tron-indexer-webhook/1.0")
	req.Header.Set("X-Webhook-ID", tx.ID)
	req.Header.Set("X-Event-Topics", strings.Join(tx.NotificationTopics, ","))
	for key, value := range h.target.Headers {
		req.Header.Set(key, value)
	}
	if h.target.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+computeSignature(body, h.target.Secret))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		h.logger.Warn("Webhook rejected delivery",
			zap.String("txID", tx.ID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}

// computeSignature computes the HMAC-SHA256 of the payload
func computeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature verifies a signature header value.
// Receivers can use it to authenticate deliveries.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}
