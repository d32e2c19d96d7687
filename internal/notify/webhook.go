package notify

import (
	"context"
	"net/http"
	"strings"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// Webhook posts the normalized envelope to an arbitrary URL.
type Webhook struct {
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

func NewWebhook(cfg config.WebhookConfig) *Webhook {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	return &Webhook{
		url:     strings.TrimSpace(cfg.URL),
		method:  method,
		headers: cfg.Headers,
		client:  newHTTPClient(parseTimeout(cfg.Timeout)),
	}
}

func (w *Webhook) Name() string       { return NameWebhook }
func (w *Webhook) IsConfigured() bool { return w.url != "" && w.method != "" }

func (w *Webhook) Send(ctx context.Context, s signal.TradeSignal) error {
	if !w.IsConfigured() {
		return ErrNotConfigured
	}
	return doJSON(ctx, w.client, w.method, w.url, w.headers, NewEnvelope(s))
}
