package alerts

import (
	"tradealert/internal/config"
	"tradealert/internal/notify"
)

// HandlersFromConfig builds one handler per enabled channel block, in the
// fixed channel order: email, sms, slack, discord, desktop, webhook,
// telegram, kafka. Whether each is configured is decided by the Manager.
func HandlersFromConfig(h config.HandlersConfig) []notify.Handler {
	var out []notify.Handler
	if h.Email != nil && h.Email.Enabled {
		out = append(out, notify.NewEmail(*h.Email))
	}
	if h.SMS != nil && h.SMS.Enabled {
		out = append(out, notify.NewSMS(*h.SMS))
	}
	if h.Slack != nil && h.Slack.Enabled {
		out = append(out, notify.NewChat(notify.FlavorSlack, *h.Slack))
	}
	if h.Discord != nil && h.Discord.Enabled {
		out = append(out, notify.NewChat(notify.FlavorDiscord, *h.Discord))
	}
	if h.Desktop != nil && h.Desktop.Enabled {
		out = append(out, notify.NewDesktop(*h.Desktop))
	}
	if h.Webhook != nil && h.Webhook.Enabled {
		out = append(out, notify.NewWebhook(*h.Webhook))
	}
	if h.Telegram != nil && h.Telegram.Enabled {
		out = append(out, notify.NewTelegram(*h.Telegram))
	}
	if h.Kafka != nil && h.Kafka.Enabled {
		out = append(out, notify.NewKafka(*h.Kafka))
	}
	return out
}

// OptionsFromConfig maps the alert sections of cfg onto Manager options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{Enabled: true}
	}
	return Options{
		Enabled:  cfg.Enabled(),
		AlertOn:  cfg.AlertOnDecisions,
		Handlers: HandlersFromConfig(cfg.NotificationHandlers),
	}
}
