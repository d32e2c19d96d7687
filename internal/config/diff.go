package config

import (
	"reflect"
	"sort"
)

// Diff lists which top-level sections and channels differ between two
// configs. Values are never included so secrets stay out of logs.
func Diff(old, next *Config) []string {
	if old == nil || next == nil {
		if old == next {
			return nil
		}
		return []string{"*"}
	}
	var out []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	add("alerts_enabled", old.Enabled(), next.Enabled())
	add("alert_on_decisions", old.AlertOnDecisions, next.AlertOnDecisions)

	oh, nh := old.NotificationHandlers, next.NotificationHandlers
	add("notification_handlers.email", oh.Email, nh.Email)
	add("notification_handlers.sms", oh.SMS, nh.SMS)
	add("notification_handlers.slack", oh.Slack, nh.Slack)
	add("notification_handlers.discord", oh.Discord, nh.Discord)
	add("notification_handlers.desktop", oh.Desktop, nh.Desktop)
	add("notification_handlers.webhook", oh.Webhook, nh.Webhook)
	add("notification_handlers.telegram", oh.Telegram, nh.Telegram)
	add("notification_handlers.kafka", oh.Kafka, nh.Kafka)

	add("monitor", old.Monitor, next.Monitor)
	add("producer", old.Producer, next.Producer)
	add("storage", old.Storage, next.Storage)
	add("logging", old.Logging, next.Logging)
	add("ops", old.Ops, next.Ops)
	sort.Strings(out)
	return out
}
