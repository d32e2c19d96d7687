// Package notify implements the notification transports.
//
// Every handler formats a signal.TradeSignal purely and performs exactly
// one transport attempt per Send, bounded by its configured timeout.
// Handlers return errors; they never retry.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// Handler names, also used as DispatchResult keys.
const (
	NameEmail    = "email"
	NameSMS      = "sms"
	NameSlack    = "slack"
	NameDiscord  = "discord"
	NameDesktop  = "desktop"
	NameWebhook  = "webhook"
	NameTelegram = "telegram"
	NameKafka    = "kafka"
)

// DefaultTimeout bounds a transport call when the channel config has none.
const DefaultTimeout = 10 * time.Second

var ErrNotConfigured = errors.New("handler not configured")

// Handler delivers a signal over one transport.
type Handler interface {
	Name() string
	// IsConfigured reports whether every required field is present. No I/O.
	IsConfigured() bool
	Send(ctx context.Context, s signal.TradeSignal) error
}

// Closer is implemented by handlers that hold connections.
type Closer interface {
	Close() error
}

func parseTimeout(raw string) time.Duration {
	if d := config.ChannelTimeout(raw); d > 0 {
		return d
	}
	return DefaultTimeout
}

func decisionEmoji(decision string) string {
	switch decision {
	case signal.Buy:
		return "📈"
	case signal.Sell:
		return "📉"
	case signal.Hold:
		return "📊"
	default:
		return "🔔"
	}
}

func decisionHex(decision string) string {
	switch decision {
	case signal.Buy:
		return "#28a745"
	case signal.Sell:
		return "#dc3545"
	case signal.Hold:
		return "#ffc107"
	default:
		return "#6c757d"
	}
}

func alertTitle(s signal.TradeSignal) string {
	return fmt.Sprintf("Trade Alert: %s %s", s.Decision, s.Ticker)
}

func blank(xs ...string) bool {
	for _, x := range xs {
		if strings.TrimSpace(x) == "" {
			return true
		}
	}
	return false
}

// Envelope is the normalized JSON body shared by the webhook and kafka handlers.
type Envelope struct {
	AlertType    string         `json:"alert_type"`
	Ticker       string         `json:"ticker"`
	Decision     string         `json:"decision"`
	Date         string         `json:"date"`
	Timestamp    string         `json:"timestamp"`
	Summary      string         `json:"summary"`
	FullAnalysis map[string]any `json:"full_analysis"`
}

const AlertTypeTradeSignal = "trade_signal"

func NewEnvelope(s signal.TradeSignal) Envelope {
	fa := s.Analysis
	if fa == nil {
		fa = map[string]any{}
	}
	return Envelope{
		AlertType:    AlertTypeTradeSignal,
		Ticker:       s.Ticker,
		Decision:     s.Decision,
		Date:         s.Date,
		Timestamp:    s.Clock(),
		Summary:      s.Summary,
		FullAnalysis: fa,
	}
}
