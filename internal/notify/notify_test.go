package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

func testSignal(ticker, decision string, analysis map[string]any) signal.TradeSignal {
	at := time.Date(2024, 1, 15, 14, 30, 5, 0, time.UTC)
	return signal.New(ticker, decision, "2024-01-15", analysis, "unit test", at)
}

func TestWebhookPostsEnvelope(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var got Envelope
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewWebhook(config.WebhookConfig{
		URL:     srv.URL + "/hook",
		Method:  "POST",
		Headers: map[string]string{"Authorization": "Bearer x"},
	})
	if !h.IsConfigured() {
		t.Fatalf("webhook should be configured")
	}
	s := testSignal("TSLA", "SELL", map[string]any{"price_target": "$200"})
	if err := h.Send(context.Background(), s); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d; want 1", calls.Load())
	}
	if got.AlertType != "trade_signal" || got.Ticker != "TSLA" || got.Decision != "SELL" {
		t.Fatalf("envelope=%+v", got)
	}
	if got.Date != "2024-01-15" || got.Timestamp != "14:30:05" || got.FullAnalysis["price_target"] != "$200" {
		t.Fatalf("envelope=%+v", got)
	}
	if auth != "Bearer x" {
		t.Fatalf("custom header not sent: %q", auth)
	}
}

func TestWebhookNon2xxFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhook(config.WebhookConfig{URL: srv.URL}).Send(context.Background(), testSignal("A", "BUY", nil))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("err=%v; want StatusError 500", err)
	}
}

func TestWebhookTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	h := NewWebhook(config.WebhookConfig{URL: srv.URL, Timeout: "100ms"})
	start := time.Now()
	if err := h.Send(context.Background(), testSignal("A", "BUY", nil)); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestIsConfigured(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		h    Handler
		want bool
	}{
		{"email ok", NewEmail(config.EmailConfig{SMTPServer: "smtp.x", SMTPPort: 587, SenderEmail: "a@x", SenderPassword: "p", RecipientEmails: config.StringList{"b@x"}}), true},
		{"email blank recipients", NewEmail(config.EmailConfig{SMTPServer: "smtp.x", SMTPPort: 587, SenderEmail: "a@x", SenderPassword: "p", RecipientEmails: config.StringList{" ", ""}}), false},
		{"email no password", NewEmail(config.EmailConfig{SMTPServer: "smtp.x", SMTPPort: 587, SenderEmail: "a@x", RecipientEmails: config.StringList{"b@x"}}), false},
		{"sms ok", NewSMS(config.SMSConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1", RecipientNumbers: config.StringList{"+2"}}), true},
		{"sms no numbers", NewSMS(config.SMSConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1"}), false},
		{"slack ok", NewChat(FlavorSlack, config.ChatConfig{WebhookURL: "https://hooks.x"}), true},
		{"discord empty", NewChat(FlavorDiscord, config.ChatConfig{}), false},
		{"webhook empty", NewWebhook(config.WebhookConfig{}), false},
		{"telegram ok", NewTelegram(config.TelegramConfig{BotToken: "1:x", ChatID: "42"}), true},
		{"telegram no chat", NewTelegram(config.TelegramConfig{BotToken: "1:x"}), false},
		{"kafka ok", NewKafka(config.KafkaConfig{Brokers: config.StringList{"127.0.0.1:9092"}, Topic: "t"}), true},
		{"kafka no topic", NewKafka(config.KafkaConfig{Brokers: config.StringList{"127.0.0.1:9092"}}), false},
		{"desktop disabled", NewDesktop(config.DesktopConfig{Enabled: false, Command: "true"}), false},
		{"desktop missing binary", NewDesktop(config.DesktopConfig{Enabled: true, Command: "tradealert-no-such-notifier"}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.h.IsConfigured(); got != tc.want {
				t.Fatalf("IsConfigured=%v; want %v", got, tc.want)
			}
		})
	}
}

func TestUnconfiguredSendFails(t *testing.T) {
	t.Parallel()
	hs := []Handler{
		NewEmail(config.EmailConfig{}),
		NewSMS(config.SMSConfig{}),
		NewChat(FlavorSlack, config.ChatConfig{}),
		NewWebhook(config.WebhookConfig{}),
		NewTelegram(config.TelegramConfig{}),
		NewKafka(config.KafkaConfig{}),
	}
	for _, h := range hs {
		if err := h.Send(context.Background(), testSignal("A", "BUY", nil)); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("%s: err=%v; want ErrNotConfigured", h.Name(), err)
		}
	}
}

func TestChatPayloads(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		mu.Lock()
		bodies[r.URL.Path] = m
		mu.Unlock()
	}))
	defer srv.Close()

	s := testSignal("AAPL", "BUY", nil)
	slack := NewChat(FlavorSlack, config.ChatConfig{WebhookURL: srv.URL + "/slack", Channel: "#alerts", Username: "Trading Bot"})
	discord := NewChat(FlavorDiscord, config.ChatConfig{WebhookURL: srv.URL + "/discord"})
	for _, h := range []*Chat{slack, discord} {
		if err := h.Send(context.Background(), s); err != nil {
			t.Fatalf("%s: %v", h.Name(), err)
		}
	}
	if slack.Name() != "slack" || discord.Name() != "discord" {
		t.Fatalf("names: %s %s", slack.Name(), discord.Name())
	}

	sl := bodies["/slack"]
	att := sl["attachments"].([]any)[0].(map[string]any)
	if sl["channel"] != "#alerts" || att["color"] != "good" {
		t.Fatalf("slack payload=%v", sl)
	}
	if n := len(att["fields"].([]any)); n != 4 {
		t.Fatalf("slack fields=%d", n)
	}

	emb := bodies["/discord"]["embeds"].([]any)[0].(map[string]any)
	if int(emb["color"].(float64)) != 0x28a745 {
		t.Fatalf("discord color=%v", emb["color"])
	}
	if !strings.Contains(emb["title"].(string), "BUY AAPL") {
		t.Fatalf("discord title=%v", emb["title"])
	}
}

func TestSMSSendsPerRecipient(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var to []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		if !strings.Contains(r.PostForm.Get("Body"), "SELL QQQ") || r.PostForm.Get("From") != "+15550000" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		to = append(to, r.PostForm.Get("To"))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid":"SM1"}`)
	}))
	defer srv.Close()

	h := NewSMS(config.SMSConfig{
		AccountSID:       "AC123",
		AuthToken:        "secret",
		FromNumber:       "+15550000",
		RecipientNumbers: config.StringList{"+15551111", " ", "+15552222"},
		APIURL:           srv.URL,
	})
	if err := h.Send(context.Background(), testSignal("QQQ", "SELL", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if strings.Join(to, ",") != "+15551111,+15552222" {
		t.Fatalf("recipients=%v", to)
	}
}

func TestTelegramText(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 150)
	s := testSignal("NVDA", "BUY", map[string]any{
		"price_target":       "$500",
		"stop_loss":          "$420",
		"confidence":         0.85,
		"technical_analysis": long,
	})
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	txt := telegramText(s, now)
	for _, want := range []string{
		"🟢📈 *BUY Signal*",
		"📊 *Ticker:* `NVDA`",
		"🎯 Target: `$500`",
		"🛑 Stop Loss: `$420`",
		"📊 Confidence: `85%`",
		"🔧 Technical: " + strings.Repeat("x", 100) + "...\n",
		"⏰ *Alert Time:* 09:00:00 UTC",
	} {
		if !strings.Contains(txt, want) {
			t.Fatalf("missing %q in:\n%s", want, txt)
		}
	}

	// whole-number confidence is already a percentage
	s = testSignal("NVDA", "SELL", map[string]any{"confidence": 72})
	if txt := telegramText(s, now); !strings.Contains(txt, "`72%`") || !strings.Contains(txt, "🔴📉") {
		t.Fatalf("text=%s", txt)
	}
}

func TestTelegramHTML(t *testing.T) {
	t.Parallel()
	s := testSignal("AT&T", "SELL", map[string]any{"price_target": "<$20", "technical_analysis": "RSI > 70"})
	s.Summary = "margins <shrinking> & debt"
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	h := NewTelegram(config.TelegramConfig{BotToken: "1:x", ChatID: "42", ParseMode: "HTML"})
	txt := h.render(s, now)
	for _, want := range []string{
		"🔴📉 <b>SELL Signal</b>\n\n",
		"📊 <b>Ticker:</b> <code>AT&amp;T</code>",
		"💭 <b>Summary:</b> margins &lt;shrinking&gt; &amp; debt",
		"🎯 Target: <code>&lt;$20</code>",
		"🔧 Technical: <i>RSI &gt; 70</i>",
		"⏰ <b>Alert Time:</b> 09:00:00 UTC",
	} {
		if !strings.Contains(txt, want) {
			t.Fatalf("missing %q in:\n%s", want, txt)
		}
	}

	s.Summary = strings.Repeat("y", 5000)
	if n := len([]rune(h.render(s, now))); n != 4096 {
		t.Fatalf("rendered %d runes, want the 4096 cap", n)
	}
}

func TestTelegramBotAPI(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var sent map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bot123:abc/getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":123,"is_bot":true,"first_name":"T","username":"trade_bot"}}`)
		case "/bot123:abc/sendMessage":
			var m map[string]any
			_ = json.NewDecoder(r.Body).Decode(&m)
			mu.Lock()
			sent = m
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	defer srv.Close()

	h := NewTelegram(config.TelegramConfig{BotToken: "123:abc", ChatID: "42", APIURL: srv.URL, DisableNotification: true})
	name, err := h.TestConnection(context.Background())
	if err != nil || name != "trade_bot" {
		t.Fatalf("TestConnection = %q, %v", name, err)
	}
	if err := h.SendTestMessage(context.Background()); err != nil {
		t.Fatalf("SendTestMessage: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if sent["parse_mode"] != "Markdown" {
		t.Fatalf("parse_mode=%v", sent["parse_mode"])
	}
	if !strings.Contains(sent["text"].(string), "`AAPL`") || !strings.Contains(sent["text"].(string), "`85%`") {
		t.Fatalf("text=%v", sent["text"])
	}
}

func TestDesktopCustomCommand(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no `true` binary on PATH")
	}
	h := NewDesktop(config.DesktopConfig{Enabled: true, Command: "true"})
	if !h.IsConfigured() {
		t.Fatalf("desktop should be configured")
	}
	if err := h.Send(context.Background(), testSignal("AAPL", "BUY", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := h.args("linux", "t", "b"); strings.Join(got, "|") != "t|b" {
		t.Fatalf("custom args=%v", got)
	}
}

func TestDesktopSendBoundedByForkedChild(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	// the child keeps stdout open after the notifier itself exits
	script := filepath.Join(t.TempDir(), "notifier.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 4 &\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	h := NewDesktop(config.DesktopConfig{Enabled: true, Command: script, Timeout: "10s"})
	if !h.IsConfigured() {
		t.Fatal("desktop should be configured")
	}

	start := time.Now()
	err := h.Send(context.Background(), testSignal("AAPL", "BUY", nil))
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("Send took %v with a child holding the pipe", elapsed)
	}
	if !errors.Is(err, exec.ErrWaitDelay) {
		t.Fatalf("err = %v, want ErrWaitDelay", err)
	}
}

func TestDesktopPlatformArgs(t *testing.T) {
	t.Parallel()
	d := &Desktop{appName: "Trading Agents"}
	if got := d.args("linux", "T", "B"); strings.Join(got, "|") != "-a|Trading Agents|T|B" {
		t.Fatalf("linux args=%v", got)
	}
	got := d.args("darwin", `say "hi"`, "B")
	if got[0] != "-e" || !strings.Contains(got[1], `with title "say \"hi\""`) {
		t.Fatalf("darwin args=%v", got)
	}
	if platformNotifier("plan9") != "" {
		t.Fatalf("unknown platform should have no notifier")
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublishesEnvelope(t *testing.T) {
	t.Parallel()
	fw := &fakeWriter{}
	h := NewKafka(config.KafkaConfig{Brokers: config.StringList{"127.0.0.1:9092"}, Topic: "signals"})
	_ = h.Close()
	h.w = fw

	s := testSignal("SPY", "BUY", nil)
	if err := h.Send(context.Background(), s); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fw.msgs) != 1 || string(fw.msgs[0].Key) != "SPY" {
		t.Fatalf("msgs=%+v", fw.msgs)
	}
	var env Envelope
	if err := json.Unmarshal(fw.msgs[0].Value, &env); err != nil || env.Decision != "BUY" {
		t.Fatalf("envelope=%+v err=%v", env, err)
	}

	fw.err = errors.New("broker down")
	if err := h.Send(context.Background(), s); err == nil {
		t.Fatalf("expected writer error")
	}
}

// fakeSMTP accepts one session and records the envelope.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt []string
	data string
	auth bool
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeSMTP) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeSMTP) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(s string) { _, _ = io.WriteString(conn, s+"\r\n") }
	write("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			write("250-fake")
			write("250 AUTH PLAIN")
		case strings.HasPrefix(cmd, "AUTH"):
			f.mu.Lock()
			f.auth = true
			f.mu.Unlock()
			write("235 ok")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			f.mu.Lock()
			f.from = strings.Trim(strings.TrimSpace(line)[10:], "<>")
			f.mu.Unlock()
			write("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			f.mu.Lock()
			f.rcpt = append(f.rcpt, strings.Trim(strings.TrimSpace(line)[8:], "<>"))
			f.mu.Unlock()
			write("250 ok")
		case cmd == "DATA":
			write("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			f.mu.Lock()
			f.data = b.String()
			f.mu.Unlock()
			write("250 queued")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func TestEmailSend(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t)
	h := NewEmail(config.EmailConfig{
		SMTPServer:      "127.0.0.1",
		SMTPPort:        srv.port(),
		SenderEmail:     "bot@example.com",
		SenderPassword:  "pw",
		RecipientEmails: config.StringList{" a@example.com ", "b@example.com"},
		Timeout:         "5s",
	})
	s := testSignal("AAPL", "BUY", map[string]any{"price_target": "$190", "confidence": 0.9})
	if err := h.Send(context.Background(), s); err != nil {
		t.Fatalf("Send: %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.auth || srv.from != "bot@example.com" {
		t.Fatalf("auth=%v from=%q", srv.auth, srv.from)
	}
	if strings.Join(srv.rcpt, ",") != "a@example.com,b@example.com" {
		t.Fatalf("rcpt=%v", srv.rcpt)
	}
	if !strings.Contains(srv.data, "Content-Type: text/html") {
		t.Fatalf("data=%s", srv.data)
	}

	body, err := emailBody(s)
	if err != nil {
		t.Fatalf("emailBody: %v", err)
	}
	for _, want := range []string{"Trade Alert: BUY AAPL", "#28a745", "Price Target:</strong> $190", "Confidence:</strong> 90%"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestEmailBlankRecipientFailsClosed(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t)
	h := NewEmail(config.EmailConfig{
		SMTPServer:      "127.0.0.1",
		SMTPPort:        srv.port(),
		SenderEmail:     "bot@example.com",
		SenderPassword:  "pw",
		RecipientEmails: config.StringList{"a@example.com", "  "},
		Timeout:         "5s",
	})
	if h.IsConfigured() {
		t.Fatal("configured with a blank recipient")
	}
	if err := h.Send(context.Background(), testSignal("AAPL", "BUY", nil)); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send err = %v, want ErrNotConfigured", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.rcpt) != 0 {
		t.Fatalf("rcpt=%v, want no SMTP session", srv.rcpt)
	}
}

func TestEmailDialFailure(t *testing.T) {
	t.Parallel()
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	h := NewEmail(config.EmailConfig{
		SMTPServer: "127.0.0.1", SMTPPort: port, SenderEmail: "a@x", SenderPassword: "p",
		RecipientEmails: config.StringList{"b@x"}, Timeout: "1s",
	})
	if err := h.Send(context.Background(), testSignal("A", "BUY", nil)); err == nil {
		t.Fatalf("expected dial error on port %s", strconv.Itoa(port))
	}
}
