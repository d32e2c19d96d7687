package app

import (
	"context"
	"strings"

	"tradealert/internal/config"
	logx "tradealert/pkg/logx"
)

// sections that only take effect after a restart
var restartSections = []string{"monitor", "producer", "storage", "ops"}

// applyConfigLoop hot-applies reloaded configs: the alert policy and
// handler set are swapped in place and logging outputs are updated.
// The running monitor keeps its tickers and schedule.
func (a *App) applyConfigLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(old, next *config.Config) {
	changed := config.Diff(old, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config change summary", logx.String("changed", strings.Join(changed, ",")))

	var alertsChanged, loggingChanged bool
	var restart []string
	for _, s := range changed {
		switch {
		case s == "alerts_enabled" || s == "alert_on_decisions" || strings.HasPrefix(s, "notification_handlers."):
			alertsChanged = true
		case s == "logging":
			loggingChanged = true
		case s == "*":
			alertsChanged, loggingChanged = true, true
		}
		for _, r := range restartSections {
			if s == r {
				restart = append(restart, s)
			}
		}
	}

	if loggingChanged {
		a.logs.Apply(mapLogConfig(next.Logging))
	}
	if alertsChanged {
		a.alerts.Apply(a.alertOptions(next))
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart to take effect", logx.Strings("sections", restart))
	}
}
