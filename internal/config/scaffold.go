package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is the config file used when -config is not given.
const DefaultPath = "alert_config.yaml"

const scaffoldYAML = `# tradealert configuration
# Secrets may reference environment variables as ${NAME}; a .env file next to
# the binary is loaded first.

alerts_enabled: true
alert_on_decisions: [BUY, SELL]

notification_handlers:
  email:
    enabled: false
    smtp_server: smtp.gmail.com
    smtp_port: 587
    sender_email: ""
    sender_password: ${ALERT_EMAIL_PASSWORD}
    recipient_emails: []

  sms:
    enabled: false
    twilio_account_sid: ${TWILIO_ACCOUNT_SID}
    twilio_auth_token: ${TWILIO_AUTH_TOKEN}
    twilio_from_number: ""
    recipient_numbers: []

  slack:
    enabled: false
    webhook_url: ""
    channel: "#trading-alerts"
    username: Trading Bot

  discord:
    enabled: false
    webhook_url: ""
    username: Trading Bot

  desktop:
    enabled: true

  webhook:
    enabled: false
    webhook_url: ""
    webhook_method: POST
    webhook_headers: {}
    webhook_timeout: 10s

  telegram:
    enabled: false
    bot_token: ${TELEGRAM_BOT_TOKEN}
    chat_id: ""
    parse_mode: Markdown
    disable_notification: false

  kafka:
    enabled: false
    brokers: []
    topic: trade-signals

monitor:
  tickers: [SPY, QQQ, AAPL]
  schedule: manual   # manual | hourly | daily | cron expression | interval (e.g. 4h)
  daily_at: "09:30"
  ticker_delay: 1s
  cooldown: 1h

producer:
  url: http://127.0.0.1:8000/analyze
  timeout: 5m

storage:
  driver: file       # file | sqlite | redis | none
  path: ./alert_history.json
  retention: 720h

logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./tradealert.log

ops:
  enabled: false
  addr: 127.0.0.1:9464
  pprof: false
`

// ErrExists is returned by WriteScaffold when the target already exists.
var ErrExists = errors.New("config file already exists")

// WriteScaffold writes the sample configuration to path.
// An existing file is only replaced when force is set.
func WriteScaffold(path string, force bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(scaffoldYAML), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
