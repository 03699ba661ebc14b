package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// ErrRateLimited is returned when a Slack target exceeds its message rate
var ErrRateLimited = errors.New("slack rate limit exceeded")

// SlackMessage is an incoming-webhook message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment is a colored message block
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField is one key/value row of an attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackHandler posts a short summary of each matching record
type SlackHandler struct {
	target  config.SlackTarget
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSlackHandler creates a handler for one Slack target
func NewSlackHandler(target config.SlackTarget, logger *zap.Logger) (*SlackHandler, error) {
	if err := validateURL(target.WebhookURL); err != nil {
		return nil, fmt.Errorf("slack %s: %w", target.Name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	perMinute := target.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SlackHandler{
		target:  target,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:  logger.Named("slack").With(zap.String("target", target.Name)),
	}, nil
}

// Name is the observer name
func (h *SlackHandler) Name() string {
	return "slack-" + h.target.Name
}

// Predicate selects the configured topics above the minimum amount
func (h *SlackHandler) Predicate() observer.Predicate {
	return and(observer.MatchAnyOf(h.target.Topics...), minAmount(h.target.MinAmountTRX))
}

// Handle posts one record. Slack answers 200 "ok" on success.
func (h *SlackHandler) Handle(ctx context.Context, tx types.ClassifiedTransaction, block types.BlockContext) error {
	if !h.limiter.Allow() {
		return ErrRateLimited
	}

	payload, err := json.Marshal(h.buildMessage(&tx, block))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.target.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, body)
	}

	h.logger.Debug("Slack notification delivered", zap.String("txID", tx.ID))
	return nil
}

func (h *SlackHandler) buildMessage(tx *types.ClassifiedTransaction, block types.BlockContext) *SlackMessage {
	color, title := describe(tx)

	fields := []SlackField{
		{Title: "From", Value: orDash(tx.Participants.From), Short: true},
		{Title: "To", Value: orDash(tx.Participants.To), Short: true},
	}
	if amount := formatAmount(tx); amount != "" {
		fields = append(fields, SlackField{Title: "Amount", Value: amount, Short: true})
	}
	if tx.AmountUSD > 0 {
		fields = append(fields, SlackField{Title: "USD", Value: fmt.Sprintf("$%.2f", tx.AmountUSD), Short: true})
	}
	if tx.ResourceKind != "" {
		fields = append(fields, SlackField{Title: "Resource", Value: string(tx.ResourceKind), Short: true})
	}
	fields = append(fields, SlackField{Title: "Transaction", Value: tx.ID})

	return &SlackMessage{
		Channel:   h.target.Channel,
		Username:  h.target.Username,
		IconEmoji: ":satellite:",
		Attachments: []SlackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s in block #%d", title, block.Number),
			Fields: fields,
			Footer: "tron-indexer",
			Ts:     tx.Timestamp.Unix(),
		}},
	}
}

func describe(tx *types.ClassifiedTransaction) (color, title string) {
	switch tx.Pattern {
	case types.PatternTransfer:
		return "#16a34a", "Transfer"
	case types.PatternTokenTransfer:
		return "#0891b2", "Token transfer"
	case types.PatternDelegation:
		if tx.Type == types.TxUndelegateResource {
			return "#ea580c", "Undelegation"
		}
		return "#2563eb", "Delegation"
	case types.PatternTokenCreation:
		return "#9333ea", "Token created"
	default:
		return "#6b7280", string(tx.Type)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
