package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "tradealert/pkg/logx"
)

// sd_notify is a no-op outside a systemd unit (NOTIFY_SOCKET unset).

func notifyReady(log logx.Logger) {
	sdNotify(log, daemon.SdNotifyReady)
}

func notifyStopping(log logx.Logger) {
	sdNotify(log, daemon.SdNotifyStopping)
}

func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half the configured interval
// when the unit sets WatchdogSec.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	every := interval / 2
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sdNotify(a.log, daemon.SdNotifyWatchdog)
			}
		}
	})
}
