package config

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Config is the full tradealert configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
// Secrets may be written as ${ENV_NAME}; they are expanded at parse time.
type Config struct {
	// AlertsEnabled is a pointer so an omitted key defaults to true
	// while an explicit false is kept.
	AlertsEnabled    *bool    `json:"alerts_enabled,omitempty" default:"true"`
	AlertOnDecisions []string `json:"alert_on_decisions,omitempty" default:"[\"BUY\",\"SELL\"]" validate:"dive,required"`

	NotificationHandlers HandlersConfig `json:"notification_handlers"`

	Monitor  MonitorConfig  `json:"monitor"`
	Producer ProducerConfig `json:"producer"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Ops      OpsConfig      `json:"ops"`
}

// Enabled reports the global alert switch.
func (c *Config) Enabled() bool {
	return c == nil || c.AlertsEnabled == nil || *c.AlertsEnabled
}

// HandlersConfig holds one optional block per notification channel.
// A nil block means the channel is not configured at all.
type HandlersConfig struct {
	Email    *EmailConfig    `json:"email,omitempty"`
	SMS      *SMSConfig      `json:"sms,omitempty"`
	Slack    *ChatConfig     `json:"slack,omitempty"`
	Discord  *ChatConfig     `json:"discord,omitempty"`
	Desktop  *DesktopConfig  `json:"desktop,omitempty"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Kafka    *KafkaConfig    `json:"kafka,omitempty"`
}

type EmailConfig struct {
	Enabled         bool       `json:"enabled"`
	SMTPServer      string     `json:"smtp_server" default:"smtp.gmail.com"`
	SMTPPort        int        `json:"smtp_port" default:"587" validate:"min=0,max=65535"`
	SenderEmail     string     `json:"sender_email" validate:"omitempty,email"`
	SenderPassword  string     `json:"sender_password"`
	RecipientEmails StringList `json:"recipient_emails"`
	Timeout         string     `json:"timeout,omitempty" default:"10s"`
}

type SMSConfig struct {
	Enabled          bool       `json:"enabled"`
	AccountSID       string     `json:"twilio_account_sid"`
	AuthToken        string     `json:"twilio_auth_token"`
	FromNumber       string     `json:"twilio_from_number"`
	RecipientNumbers StringList `json:"recipient_numbers"`
	// APIURL overrides the provider base URL (tests, regional endpoints).
	APIURL  string `json:"api_url,omitempty" default:"https://api.twilio.com" validate:"omitempty,url"`
	Timeout string `json:"timeout,omitempty" default:"10s"`
}

// ChatConfig configures a chat webhook (Slack incoming webhook or Discord webhook).
type ChatConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url" validate:"omitempty,url"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty" default:"Trading Bot"`
	Timeout    string `json:"timeout,omitempty" default:"10s"`
}

type DesktopConfig struct {
	Enabled bool `json:"enabled"`
	// Command overrides the platform notifier binary (notify-send, osascript, powershell).
	Command string `json:"command,omitempty"`
	AppName string `json:"app_name,omitempty" default:"Trading Agents"`
	Timeout string `json:"timeout,omitempty" default:"10s"`
}

type WebhookConfig struct {
	Enabled bool              `json:"enabled"`
	URL     string            `json:"webhook_url" validate:"omitempty,url"`
	Method  string            `json:"webhook_method,omitempty" default:"POST" validate:"omitempty,oneof=POST PUT PATCH"`
	Headers map[string]string `json:"webhook_headers,omitempty"`
	Timeout string            `json:"webhook_timeout,omitempty" default:"10s"`
}

type TelegramConfig struct {
	Enabled             bool   `json:"enabled"`
	BotToken            string `json:"bot_token"`
	ChatID              string `json:"chat_id"`
	ParseMode           string `json:"parse_mode,omitempty" default:"Markdown" validate:"omitempty,oneof=Markdown MarkdownV2 HTML"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
	APIURL              string `json:"api_url,omitempty" default:"https://api.telegram.org" validate:"omitempty,url"`
	Timeout             string `json:"timeout,omitempty" default:"10s"`
}

type KafkaConfig struct {
	Enabled bool       `json:"enabled"`
	Brokers StringList `json:"brokers"`
	Topic   string     `json:"topic"`
	Timeout string     `json:"timeout,omitempty" default:"10s"`
}

// MonitorConfig controls the evaluation loop.
type MonitorConfig struct {
	Tickers []string `json:"tickers,omitempty" default:"[\"SPY\",\"QQQ\",\"AAPL\"]" validate:"dive,required"`
	// Schedule is "manual", "hourly", "daily", a cron expression or an interval ("4h").
	Schedule string `json:"schedule,omitempty" default:"manual"`
	// DailyAt is the HH:MM used by the "daily" schedule.
	DailyAt     string `json:"daily_at,omitempty" default:"09:30"`
	Timezone    string `json:"timezone,omitempty"`
	TickerDelay string `json:"ticker_delay,omitempty" default:"1s"`
	Cooldown    string `json:"cooldown,omitempty" default:"1h"`
}

// ProducerConfig points at the external decision service.
type ProducerConfig struct {
	URL     string            `json:"url" validate:"omitempty,url"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout string            `json:"timeout,omitempty" default:"5m"`
}

// StorageConfig controls the durable alert history.
//
// Example:
//
//	storage: { driver: file, path: ./alert_history.json, retention: 720h }
type StorageConfig struct {
	Driver      string      `json:"driver,omitempty" default:"file" validate:"omitempty,oneof=file sqlite sqlite3 redis none"`
	Path        string      `json:"path,omitempty" default:"./alert_history.json"`
	Retention   string      `json:"retention,omitempty" default:"720h"`
	BusyTimeout string      `json:"busy_timeout,omitempty" default:"1s"` // sqlite only
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" default:"127.0.0.1:6379"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"min=0"`
	Prefix   string `json:"prefix,omitempty" default:"tradealert:alert:"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty" default:"info"`
	Console *bool       `json:"console,omitempty" default:"true"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled *bool  `json:"enabled,omitempty" default:"true"`
	Path    string `json:"path,omitempty" default:"./tradealert.log"`
}

// OpsConfig controls the operator HTTP endpoint (/healthz, /stats, /metrics).
// Prefer binding to localhost, especially with pprof on.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" default:"127.0.0.1:9464"`
	Pprof   bool   `json:"pprof,omitempty"`
}

// StringList accepts either a JSON array or a single comma-separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = splitList(s)
		return nil
	}
	var xs []string
	if err := json.Unmarshal(b, &xs); err != nil {
		return err
	}
	*l = xs
	return nil
}

// Trimmed returns every entry with surrounding space removed. Blank entries
// are kept so callers can reject them.
func (l StringList) Trimmed() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// Compact returns the trimmed, non-blank entries.
func (l StringList) Compact() []string {
	out := make([]string, 0, len(l))
	for _, s := range l {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// ConsoleEnabled and FileEnabled resolve the logging switches.
func (l LoggingConfig) ConsoleEnabled() bool { return boolOr(l.Console, true) }
func (l LoggingConfig) FileEnabled() bool    { return boolOr(l.File.Enabled, true) }
