// Package signal defines the trade signal that flows from the decision
// producer through dedup into the notification handlers.
package signal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known decisions. Producers may emit other free-form labels.
const (
	Buy  = "BUY"
	Sell = "SELL"
	Hold = "HOLD"
)

// DateLayout is the calendar-date layout used for signal dates and dedup keys.
const DateLayout = "2006-01-02"

// Analysis keys the handlers know how to render.
const (
	KeyPriceTarget       = "price_target"
	KeyStopLoss          = "stop_loss"
	KeyTechnicalAnalysis = "technical_analysis"
	KeyConfidence        = "confidence"
)

// TradeSignal is one evaluation output considered for alerting.
// Treat it as immutable: handlers receive it by value and must not mutate Analysis.
type TradeSignal struct {
	ID          string
	Ticker      string
	Decision    string
	Date        string
	GeneratedAt time.Time
	Summary     string
	Analysis    map[string]any
}

// New builds a signal stamped with at. Decision is normalized to upper case and
// an empty summary falls back to a generic line.
func New(ticker, decision, date string, analysis map[string]any, summary string, at time.Time) TradeSignal {
	ticker = strings.TrimSpace(ticker)
	if strings.TrimSpace(summary) == "" {
		summary = "Trading decision generated for " + ticker
	}
	cp := make(map[string]any, len(analysis))
	for k, v := range analysis {
		cp[k] = v
	}
	return TradeSignal{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Decision:    NormalizeDecision(decision),
		Date:        strings.TrimSpace(date),
		GeneratedAt: at,
		Summary:     summary,
		Analysis:    cp,
	}
}

// NormalizeDecision upper-cases and trims a producer decision label.
func NormalizeDecision(d string) string {
	return strings.ToUpper(strings.TrimSpace(d))
}

// Key is the composite dedup identity "ticker_date_decision".
func Key(ticker, date, decision string) string {
	return strings.TrimSpace(ticker) + "_" + strings.TrimSpace(date) + "_" + NormalizeDecision(decision)
}

// Key returns the dedup identity of s.
func (s TradeSignal) Key() string { return Key(s.Ticker, s.Date, s.Decision) }

// Clock returns the HH:MM:SS part of GeneratedAt.
func (s TradeSignal) Clock() string { return s.GeneratedAt.Format("15:04:05") }

// Text returns Analysis[key] rendered as a string, or "" when absent.
func (s TradeSignal) Text(key string) string {
	v, ok := s.Analysis[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Confidence returns the confidence score and whether one was present and numeric.
func (s TradeSignal) Confidence() (float64, bool) {
	v, ok := s.Analysis[KeyConfidence]
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(x, "%")), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ConfidencePercent renders a confidence score as an integer percentage.
// Scores <= 1 are treated as fractions, larger values as percentages already.
func ConfidencePercent(c float64) int {
	if c <= 1 {
		return int(c * 100)
	}
	return int(c)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
