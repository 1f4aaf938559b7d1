package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/cardano-portfolio/internal/config"
	apperrors "github.com/cardano-portfolio/internal/errors"
)

// ErrWebhookNotConfigured is returned by Send when no webhook URL is set
var ErrWebhookNotConfigured = errors.New("alert webhook URL not configured")

// webhookMaxContent is the longest message Discord-compatible webhooks accept
const webhookMaxContent = 2000

// WebhookNotifier posts plain-text alerts to a Discord-compatible webhook
type WebhookNotifier struct {
	url       string
	transport transport
}

// NewWebhookNotifier creates a notifier. An empty URL makes every Send fail.
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:       cfg.URL,
		transport: newTransport("webhook", &http.Client{Timeout: cfg.Timeout}, 0),
	}
}

type webhookMessage struct {
	Content string `json:"content"`
}

// Send posts text as the message content. Any non-2xx response is an error that
// carries the response body.
func (n *WebhookNotifier) Send(ctx context.Context, text string) error {
	if n.url == "" {
		return ErrWebhookNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("refusing to send an empty alert")
	}
	if len(text) > webhookMaxContent {
		text = truncate(text, webhookMaxContent)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, n.url, webhookMessage{Content: text})
	if err != nil {
		return err
	}
	if err := n.transport.do(ctx, req, nil); err != nil {
		return apperrors.NewProviderError("webhook", err)
	}
	return nil
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut
func truncate(s string, n int) string {
	const marker = "\n…"
	limit := n - len(marker)
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + marker
}
