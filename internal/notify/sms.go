package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// SMS sends a short fixed-template text through the Twilio Messages API,
// one request per recipient.
type SMS struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	recipients []string
	client     *http.Client
}

func NewSMS(cfg config.SMSConfig) *SMS {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if base == "" {
		base = "https://api.twilio.com"
	}
	return &SMS{
		baseURL:    base,
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		from:       strings.TrimSpace(cfg.FromNumber),
		recipients: cfg.RecipientNumbers.Compact(),
		client:     newHTTPClient(parseTimeout(cfg.Timeout)),
	}
}

func (m *SMS) Name() string { return NameSMS }

func (m *SMS) IsConfigured() bool {
	return !blank(m.accountSID, m.authToken, m.from) && len(m.recipients) > 0
}

func smsText(s signal.TradeSignal) string {
	return fmt.Sprintf("🚨 TRADE ALERT 🚨\n%s %s\n%s %s\n\nCheck your trading system for full analysis.",
		s.Decision, s.Ticker, s.Date, s.Clock())
}

// Send fails if any recipient fails; every recipient is still attempted.
func (m *SMS) Send(ctx context.Context, s signal.TradeSignal) error {
	if !m.IsConfigured() {
		return ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", m.baseURL, url.PathEscape(m.accountSID))
	body := smsText(s)

	var failed []string
	var firstErr error
	for _, to := range m.recipients {
		form := url.Values{}
		form.Set("To", to)
		form.Set("From", m.from)
		form.Set("Body", body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(m.accountSID, m.authToken)
		if err := do(m.client, req); err != nil {
			failed = append(failed, to)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("sms to %s: %w", strings.Join(failed, ","), firstErr)
	}
	return nil
}
