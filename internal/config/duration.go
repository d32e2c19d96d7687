package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Durations are stored as Go duration strings ("1s", "720h"). A blank or
// zero value means the field's `default` tag.

// ParseDuration parses one duration field. Blank is zero; negatives are rejected.
func ParseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// tagDuration reads the `default` tag of field on the struct type of v.
func tagDuration(v any, field string) time.Duration {
	f, ok := reflect.TypeOf(v).FieldByName(field)
	if !ok {
		return 0
	}
	d, _ := time.ParseDuration(f.Tag.Get("default"))
	return d
}

func durationOrTag(path, raw string, v any, field string) (time.Duration, error) {
	d, err := ParseDuration(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return tagDuration(v, field), nil
}

func (m MonitorConfig) TickerDelayDuration() (time.Duration, error) {
	return durationOrTag("monitor.ticker_delay", m.TickerDelay, m, "TickerDelay")
}

func (m MonitorConfig) CooldownDuration() (time.Duration, error) {
	return durationOrTag("monitor.cooldown", m.Cooldown, m, "Cooldown")
}

func (p ProducerConfig) TimeoutDuration() (time.Duration, error) {
	return durationOrTag("producer.timeout", p.Timeout, p, "Timeout")
}

// RetentionDuration is how long one-shot alert keys are kept.
func (s StorageConfig) RetentionDuration() (time.Duration, error) {
	return durationOrTag("storage.retention", s.Retention, s, "Retention")
}

func (s StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return durationOrTag("storage.busy_timeout", s.BusyTimeout, s, "BusyTimeout")
}

// ChannelTimeout is the per-call bound shared by every notification channel.
// Every channel block declares the same `default:"10s"` tag.
func ChannelTimeout(raw string) time.Duration {
	d, err := durationOrTag("timeout", raw, WebhookConfig{}, "Timeout")
	if err != nil {
		return tagDuration(WebhookConfig{}, "Timeout")
	}
	return d
}
