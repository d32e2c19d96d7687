package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ApplyDefaults fills zero fields from `default` struct tags.
// Channel blocks that are absent stay nil.
func ApplyDefaults(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	return nil
}

// Validate checks structural rules and every duration/timezone field.
// It does not check whether a channel is fully configured; unconfigured
// channels are excluded by the alert manager instead of failing startup.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("config: %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}

	durations := map[string]string{
		"monitor.ticker_delay": cfg.Monitor.TickerDelay,
		"monitor.cooldown":     cfg.Monitor.Cooldown,
		"producer.timeout":     cfg.Producer.Timeout,
		"storage.retention":    cfg.Storage.Retention,
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
	}
	h := cfg.NotificationHandlers
	if h.Email != nil {
		durations["notification_handlers.email.timeout"] = h.Email.Timeout
	}
	if h.SMS != nil {
		durations["notification_handlers.sms.timeout"] = h.SMS.Timeout
	}
	if h.Slack != nil {
		durations["notification_handlers.slack.timeout"] = h.Slack.Timeout
	}
	if h.Discord != nil {
		durations["notification_handlers.discord.timeout"] = h.Discord.Timeout
	}
	if h.Desktop != nil {
		durations["notification_handlers.desktop.timeout"] = h.Desktop.Timeout
	}
	if h.Webhook != nil {
		durations["notification_handlers.webhook.webhook_timeout"] = h.Webhook.Timeout
	}
	if h.Telegram != nil {
		durations["notification_handlers.telegram.timeout"] = h.Telegram.Timeout
	}
	if h.Kafka != nil {
		durations["notification_handlers.kafka.timeout"] = h.Kafka.Timeout
	}
	for path, raw := range durations {
		if _, err := ParseDuration(path, raw); err != nil {
			return err
		}
	}

	if tz := strings.TrimSpace(cfg.Monitor.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("monitor.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, _, err := ParseClock(cfg.Monitor.DailyAt); err != nil {
		return fmt.Errorf("monitor.daily_at: %w", err)
	}
	return nil
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(v string) (int, int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, 0, nil
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	return t.Hour(), t.Minute(), nil
}
