package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tradealert/internal/config"
	"tradealert/internal/signal"
	"tradealert/pkg/tgui"
)

// chatID satisfies tele.Recipient for numeric ids and @channel names alike.
type chatID string

func (c chatID) Recipient() string { return string(c) }

// Telegram sends Markdown alerts through the Bot API.
type Telegram struct {
	token     string
	chat      chatID
	parseMode tele.ParseMode
	silent    bool
	apiURL    string
	timeout   time.Duration
	now       func() time.Time
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	t := &Telegram{
		token:     strings.TrimSpace(cfg.BotToken),
		chat:      chatID(strings.TrimSpace(cfg.ChatID)),
		parseMode: tele.ParseMode(strings.TrimSpace(cfg.ParseMode)),
		silent:    cfg.DisableNotification,
		apiURL:    strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		timeout:   parseTimeout(cfg.Timeout),
		now:       time.Now,
	}
	if t.parseMode == "" {
		t.parseMode = tele.ModeMarkdown
	}
	if t.apiURL == "" {
		t.apiURL = tele.DefaultApiURL
	}
	return t
}

func (t *Telegram) Name() string       { return NameTelegram }
func (t *Telegram) IsConfigured() bool { return t.token != "" && t.chat != "" }

// bot builds an offline client: no getMe round trip on construction.
func (t *Telegram) bot() (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{
		URL:     t.apiURL,
		Token:   t.token,
		Client:  &http.Client{Timeout: t.timeout},
		Offline: true,
	})
}

func (t *Telegram) Send(ctx context.Context, s signal.TradeSignal) error {
	if !t.IsConfigured() {
		return ErrNotConfigured
	}
	return t.send(ctx, t.render(s, t.now()))
}

func (t *Telegram) render(s signal.TradeSignal, now time.Time) string {
	var text string
	if t.parseMode == tele.ModeHTML {
		text = telegramHTML(s, now).String()
	} else {
		text = telegramText(s, now)
	}
	return tgui.TruncRunes(text, tgui.MaxMessageLen)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	b, err := t.bot()
	if err != nil {
		return err
	}
	opts := &tele.SendOptions{ParseMode: t.parseMode, DisableNotification: t.silent}
	return runWithContext(ctx, func() error {
		_, err := b.Send(t.chat, text, opts)
		return err
	})
}

// TestConnection calls getMe and returns the bot username.
func (t *Telegram) TestConnection(ctx context.Context) (string, error) {
	if !t.IsConfigured() {
		return "", ErrNotConfigured
	}
	b, err := t.bot()
	if err != nil {
		return "", err
	}
	var raw []byte
	err = runWithContext(ctx, func() error {
		var err error
		raw, err = b.Raw("getMe", nil)
		return err
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("getMe decode: %w", err)
	}
	if !resp.OK {
		return "", errors.New("getMe: not ok")
	}
	return resp.Result.Username, nil
}

// SendTestMessage sends a canned AAPL BUY alert with the full detail block.
func (t *Telegram) SendTestMessage(ctx context.Context) error {
	if !t.IsConfigured() {
		return ErrNotConfigured
	}
	now := t.now()
	s := signal.New("AAPL", signal.Buy, now.Format(signal.DateLayout), map[string]any{
		signal.KeyPriceTarget:       "$185.00",
		signal.KeyStopLoss:          "$165.00",
		signal.KeyTechnicalAnalysis: "RSI oversold, MACD bullish crossover, strong volume",
		signal.KeyConfidence:        0.85,
	}, "🧪 This is a test alert from your Trading Agents system!", now)
	return t.send(ctx, t.render(s, now))
}

func telegramText(s signal.TradeSignal, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s Signal*\n\n", telegramEmoji(s.Decision), s.Decision)
	fmt.Fprintf(&b, "📊 *Ticker:* `%s`\n", s.Ticker)
	fmt.Fprintf(&b, "📅 *Date:* %s\n", s.Date)
	fmt.Fprintf(&b, "💭 *Summary:* %s\n", s.Summary)

	if len(s.Analysis) > 0 {
		b.WriteString("\n📈 *Analysis Details:*\n")
		if v := s.Text(signal.KeyPriceTarget); v != "" {
			fmt.Fprintf(&b, "🎯 Target: `%s`\n", v)
		}
		if v := s.Text(signal.KeyStopLoss); v != "" {
			fmt.Fprintf(&b, "🛑 Stop Loss: `%s`\n", v)
		}
		if c, ok := s.Confidence(); ok && c != 0 {
			fmt.Fprintf(&b, "📊 Confidence: `%s%%`\n", strconv.Itoa(signal.ConfidencePercent(c)))
		}
		if v := s.Text(signal.KeyTechnicalAnalysis); v != "" {
			fmt.Fprintf(&b, "🔧 Technical: %s\n", signal.Truncate(v, 100))
		}
	}

	fmt.Fprintf(&b, "\n⏰ *Alert Time:* %s UTC", now.UTC().Format("15:04:05"))
	b.WriteString("\n🤖 *Trading Agents Alert System*")
	return b.String()
}

// telegramHTML is telegramText for ParseMode=HTML; every value is escaped.
func telegramHTML(s signal.TradeSignal, now time.Time) tgui.H {
	lines := []tgui.H{
		tgui.Line(tgui.Esc(telegramEmoji(s.Decision)), tgui.B(s.Decision+" Signal")),
		"",
		tgui.Line("📊", tgui.B("Ticker:"), tgui.Code(s.Ticker)),
		tgui.Line("📅", tgui.B("Date:"), tgui.Esc(s.Date)),
		tgui.Line("💭", tgui.B("Summary:"), tgui.Esc(s.Summary)),
	}
	if len(s.Analysis) > 0 {
		lines = append(lines, "", tgui.Line("📈", tgui.B("Analysis Details:")))
		if v := s.Text(signal.KeyPriceTarget); v != "" {
			lines = append(lines, tgui.Line("🎯 Target:", tgui.Code(v)))
		}
		if v := s.Text(signal.KeyStopLoss); v != "" {
			lines = append(lines, tgui.Line("🛑 Stop Loss:", tgui.Code(v)))
		}
		if c, ok := s.Confidence(); ok && c != 0 {
			lines = append(lines, tgui.Line("📊 Confidence:", tgui.Code(strconv.Itoa(signal.ConfidencePercent(c))+"%")))
		}
		if v := s.Text(signal.KeyTechnicalAnalysis); v != "" {
			lines = append(lines, tgui.Line("🔧 Technical:", tgui.I(signal.Truncate(v, 100))))
		}
	}
	lines = append(lines, "",
		tgui.Line("⏰", tgui.B("Alert Time:"), tgui.Esc(now.UTC().Format("15:04:05")+" UTC")),
		tgui.Line("🤖", tgui.B("Trading Agents Alert System")),
	)
	// JoinH drops blank parts, so blank separators are joined by hand.
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return tgui.H(strings.Join(out, "\n"))
}

func telegramEmoji(decision string) string {
	switch decision {
	case signal.Buy:
		return "🟢📈"
	case signal.Sell:
		return "🔴📉"
	default:
		return "⚪"
	}
}

// runWithContext returns when fn does or ctx ends, whichever is first.
// The bot client has its own timeout, so fn cannot outlive it for long.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
