package notify

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// Flavor selects the chat webhook payload shape.
type Flavor string

const (
	FlavorSlack   Flavor = "slack"
	FlavorDiscord Flavor = "discord"
)

// Chat posts a color-coded message with a field table to a Slack or
// Discord incoming webhook.
type Chat struct {
	flavor   Flavor
	url      string
	channel  string
	username string
	client   *http.Client
}

func NewChat(flavor Flavor, cfg config.ChatConfig) *Chat {
	return &Chat{
		flavor:   flavor,
		url:      strings.TrimSpace(cfg.WebhookURL),
		channel:  strings.TrimSpace(cfg.Channel),
		username: strings.TrimSpace(cfg.Username),
		client:   newHTTPClient(parseTimeout(cfg.Timeout)),
	}
}

func (c *Chat) Name() string       { return string(c.flavor) }
func (c *Chat) IsConfigured() bool { return c.url != "" }

func (c *Chat) Send(ctx context.Context, s signal.TradeSignal) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	var payload any
	if c.flavor == FlavorDiscord {
		payload = c.discordPayload(s)
	} else {
		payload = c.slackPayload(s)
	}
	return doJSON(ctx, c.client, http.MethodPost, c.url, nil, payload)
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackColor(decision string) string {
	switch decision {
	case signal.Buy:
		return "good"
	case signal.Sell:
		return "danger"
	case signal.Hold:
		return "warning"
	default:
		return "#36a64f"
	}
}

func (c *Chat) slackPayload(s signal.TradeSignal) slackMessage {
	return slackMessage{
		Channel:   c.channel,
		Username:  c.username,
		IconEmoji: ":chart_with_upwards_trend:",
		Attachments: []slackAttachment{{
			Color: slackColor(s.Decision),
			Title: decisionEmoji(s.Decision) + " " + alertTitle(s),
			Text:  s.Summary,
			Fields: []slackField{
				{Title: "Decision", Value: s.Decision, Short: true},
				{Title: "Ticker", Value: s.Ticker, Short: true},
				{Title: "Date", Value: s.Date, Short: true},
				{Title: "Time", Value: s.Clock(), Short: true},
			},
			Footer: "Trading Agents System",
			TS:     s.GeneratedAt.Unix(),
		}},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (c *Chat) discordPayload(s signal.TradeSignal) discordMessage {
	color, _ := strconv.ParseInt(strings.TrimPrefix(decisionHex(s.Decision), "#"), 16, 32)
	e := discordEmbed{
		Title:       decisionEmoji(s.Decision) + " " + alertTitle(s),
		Description: s.Summary,
		Color:       int(color),
		Fields: []discordField{
			{Name: "Decision", Value: s.Decision, Inline: true},
			{Name: "Ticker", Value: s.Ticker, Inline: true},
			{Name: "Date", Value: s.Date, Inline: true},
			{Name: "Time", Value: s.Clock(), Inline: true},
		},
		Timestamp: s.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	e.Footer.Text = "Trading Agents System"
	return discordMessage{Username: c.username, Embeds: []discordEmbed{e}}
}
