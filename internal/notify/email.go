package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// Email sends one HTML message to all recipients over SMTP.
type Email struct {
	host       string
	port       int
	sender     string
	password   string
	recipients []string
	timeout    time.Duration

	// tlsConfig is used for STARTTLS; nil means verify against host.
	tlsConfig *tls.Config
}

func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{
		host:       strings.TrimSpace(cfg.SMTPServer),
		port:       cfg.SMTPPort,
		sender:     strings.TrimSpace(cfg.SenderEmail),
		password:   cfg.SenderPassword,
		recipients: cfg.RecipientEmails.Trimmed(),
		timeout:    parseTimeout(cfg.Timeout),
	}
}

func (e *Email) Name() string { return NameEmail }

// IsConfigured is false when any recipient entry is blank.
func (e *Email) IsConfigured() bool {
	if blank(e.host, e.sender, e.password) || e.port <= 0 || len(e.recipients) == 0 {
		return false
	}
	for _, r := range e.recipients {
		if r == "" {
			return false
		}
	}
	return true
}

func (e *Email) Send(ctx context.Context, s signal.TradeSignal) error {
	if !e.IsConfigured() {
		return ErrNotConfigured
	}
	body, err := emailBody(s)
	if err != nil {
		return err
	}
	msg := e.message(alertSubject(s), body)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tc := e.tlsConfig
		if tc == nil {
			tc = &tls.Config{ServerName: e.host}
		}
		if err := c.StartTLS(tc); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", e.sender, e.password, e.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(e.sender); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, r := range e.recipients {
		if err := c.Rcpt(r); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", r, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	if err := c.Quit(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func alertSubject(s signal.TradeSignal) string {
	return "🚨 " + alertTitle(s)
}

func (e *Email) message(subject, htmlBody string) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + e.sender + "\r\n")
	b.WriteString("To: " + strings.Join(e.recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	enc := base64.StdEncoding.EncodeToString([]byte(htmlBody))
	for len(enc) > 76 {
		b.WriteString(enc[:76] + "\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc + "\r\n")
	return b.Bytes()
}

var emailTmpl = template.Must(template.New("email").Parse(`<html>
<body>
  <h2 style="color: {{.Color}};">Trade Alert: {{.S.Decision}} {{.S.Ticker}}</h2>
  <p><strong>Date:</strong> {{.S.Date}}</p>
  <p><strong>Time:</strong> {{.Time}}</p>
  <p><strong>Decision:</strong> <span style="color: {{.Color}}; font-weight: bold;">{{.S.Decision}}</span></p>
  <h3>Analysis Summary:</h3>
  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px;">
    <p>{{.S.Summary}}</p>
  </div>
{{- if .Rows}}
  <h3>Key Metrics:</h3>
  <ul>
{{- range .Rows}}
    <li><strong>{{.Label}}:</strong> {{.Value}}</li>
{{- end}}
  </ul>
{{- end}}
  <p><em>This is an automated alert from your Trading Agents system.</em></p>
</body>
</html>
`))

type emailRow struct{ Label, Value string }

func emailBody(s signal.TradeSignal) (string, error) {
	var rows []emailRow
	if v := s.Text(signal.KeyPriceTarget); v != "" {
		rows = append(rows, emailRow{"Price Target", v})
	}
	if v := s.Text(signal.KeyStopLoss); v != "" {
		rows = append(rows, emailRow{"Stop Loss", v})
	}
	if c, ok := s.Confidence(); ok {
		rows = append(rows, emailRow{"Confidence", strconv.Itoa(signal.ConfidencePercent(c)) + "%"})
	}
	if v := s.Text(signal.KeyTechnicalAnalysis); v != "" {
		rows = append(rows, emailRow{"Technical", v})
	}
	var b bytes.Buffer
	err := emailTmpl.Execute(&b, struct {
		S     signal.TradeSignal
		Color string
		Time  string
		Rows  []emailRow
	}{s, decisionHex(s.Decision), s.Clock(), rows})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
