package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// desktopWaitDelay bounds how long Send waits for output pipes after the
// notifier exits or is killed; a forked child may hold them open.
const desktopWaitDelay = time.Second

// Desktop shows a local OS notification through the platform notifier.
//
//	linux:   notify-send -a <app> <title> <body>
//	darwin:  osascript -e 'display notification ...'
//	windows: powershell balloon tip
//
// A configured Command replaces the platform notifier and receives
// <title> <body> as arguments.
type Desktop struct {
	enabled bool
	appName string
	timeout time.Duration
	custom  bool
	path    string // resolved at construction; empty when unavailable
}

func NewDesktop(cfg config.DesktopConfig) *Desktop {
	d := &Desktop{
		enabled: cfg.Enabled,
		appName: strings.TrimSpace(cfg.AppName),
		timeout: parseTimeout(cfg.Timeout),
	}
	if d.appName == "" {
		d.appName = "Trading Agents"
	}
	bin := strings.TrimSpace(cfg.Command)
	d.custom = bin != ""
	if !d.custom {
		bin = platformNotifier(runtime.GOOS)
	}
	if bin != "" {
		if p, err := lookPath(bin); err == nil {
			d.path = p
		}
	}
	return d
}

func platformNotifier(goos string) string {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send"
	case "darwin":
		return "osascript"
	case "windows":
		return "powershell"
	default:
		return ""
	}
}

func (d *Desktop) Name() string       { return NameDesktop }
func (d *Desktop) IsConfigured() bool { return d.enabled && d.path != "" }

func desktopText(s signal.TradeSignal) (title, body string) {
	title = alertTitle(s)
	body = fmt.Sprintf("Decision: %s\nDate: %s\nTime: %s", s.Decision, s.Date, s.Clock())
	return title, body
}

func (d *Desktop) Send(ctx context.Context, s signal.TradeSignal) error {
	if !d.IsConfigured() {
		return ErrNotConfigured
	}
	title, body := desktopText(s)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.path, d.args(runtime.GOOS, title, body)...)
	cmd.WaitDelay = desktopWaitDelay
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("desktop notifier: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *Desktop) args(goos, title, body string) []string {
	if d.custom {
		return []string{title, body}
	}
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(body), appleQuote(title))
		return []string{"-e", script}
	case "windows":
		script := "Add-Type -AssemblyName System.Windows.Forms;" +
			"$n = New-Object System.Windows.Forms.NotifyIcon;" +
			"$n.Icon = [System.Drawing.SystemIcons]::Information;" +
			"$n.Visible = $true;" +
			"$n.ShowBalloonTip(10000, " + psQuote(title) + ", " + psQuote(body) + ", 'Info');" +
			"Start-Sleep -Seconds 1; $n.Dispose()"
		return []string{"-NoProfile", "-NonInteractive", "-Command", script}
	default:
		return []string{"-a", d.appName, title, body}
	}
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
