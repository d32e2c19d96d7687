// Package app wires configuration, storage, handlers, the monitor and the
// ops endpoint into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradealert/internal/alerts"
	"tradealert/internal/config"
	"tradealert/internal/dedup"
	"tradealert/internal/metrics"
	"tradealert/internal/monitor"
	"tradealert/internal/notify"
	"tradealert/internal/ops"
	"tradealert/internal/producer"
	"tradealert/internal/runtime/supervisor"
	"tradealert/internal/storage"
	logx "tradealert/pkg/logx"
)

// Options are the command-line overrides. Empty fields fall back to the config file.
type Options struct {
	ConfigPath string
	EnvFiles   []string
	Tickers    []string
	Date       string
	Schedule   string
}

type App struct {
	cfgm  *config.Manager
	root  logx.Logger
	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	guard   *dedup.Guard
	alerts  *alerts.Manager
	monitor *monitor.Monitor
	metrics *metrics.Recorder
	ops     *ops.Server
	sched   monitor.Schedule

	sup *supervisor.Supervisor
}

func New(opts Options) (*App, error) {
	if len(opts.EnvFiles) > 0 {
		if err := config.LoadEnv(opts.EnvFiles...); err != nil {
			return nil, fmt.Errorf("env: %w", err)
		}
	}
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = config.DefaultPath
	}
	cfgm := config.NewManager(path)
	cfg, found, err := cfgm.LoadOrDefault()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	logs, log := logx.New(mapLogConfig(cfg.Logging))
	a := &App{cfgm: cfgm, logs: logs, root: log, log: log.With(logx.String("comp", "app"))}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	if !found {
		a.log.Warn("config file not found; using defaults", logx.String("path", path))
	}

	if err := a.build(cfg, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, opts Options) error {
	rawSched := firstNonEmpty(opts.Schedule, cfg.Monitor.Schedule)
	sched, err := monitor.ParseSchedule(rawSched, cfg.Monitor.DailyAt)
	if err != nil {
		return err
	}
	a.sched = sched

	timings, err := mapMonitorTimings(cfg.Monitor)
	if err != nil {
		return err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	sc.Location = timings.location
	// An unusable store is not fatal; dedup falls back to memory.
	store, err := storage.Open(sc, a.root)
	if err != nil {
		a.log.Warn("storage unavailable; alert history kept in memory only",
			logx.String("driver", sc.Driver), logx.Err(err))
		store = nil
	} else if store != nil {
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}
	a.store = store

	a.guard = dedup.New(dedup.Options{Store: store, Cooldown: timings.cooldown}, a.root)
	a.metrics = metrics.New()
	a.alerts = alerts.New(a.alertOptions(cfg), a.root)

	if strings.TrimSpace(cfg.Producer.URL) == "" {
		a.log.Warn("producer.url is empty; every analysis will fail")
	}
	ptimeout, err := cfg.Producer.TimeoutDuration()
	if err != nil {
		return err
	}
	prod := producer.NewHTTPClient(cfg.Producer.URL, cfg.Producer.Headers, ptimeout, a.root)

	tickers := opts.Tickers
	if len(tickers) == 0 {
		tickers = cfg.Monitor.Tickers
	}
	a.monitor, err = monitor.New(monitor.Options{
		Tickers:     tickers,
		Date:        strings.TrimSpace(opts.Date),
		TickerDelay: timings.delay,
		Location:    timings.location,
		Observer:    a.metrics,
	}, prod, a.alerts, a.guard, a.root)
	if err != nil {
		return err
	}

	if cfg.Ops.Enabled {
		a.ops = ops.New(ops.Config{Addr: cfg.Ops.Addr, Pprof: cfg.Ops.Pprof}, a.monitor, a.alerts, a.metrics.Registry(), a.root)
	}
	return nil
}

func (a *App) alertOptions(cfg *config.Config) alerts.Options {
	o := alerts.OptionsFromConfig(cfg)
	o.Recorder = a.metrics
	return o
}

// Schedule is the resolved run mode.
func (a *App) Schedule() monitor.Schedule { return a.sched }

func (a *App) Logger() logx.Logger { return a.log }

// Run executes the schedule. Manual mode returns after one cycle; scheduled
// modes block until ctx is done or a supervised goroutine fails.
func (a *App) Run(ctx context.Context) (monitor.CycleReport, error) {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.root.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.sup.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Debug("supervisor stopped with error", logx.Err(err))
		}
	}()

	if a.ops != nil {
		if err := a.ops.Listen(); err != nil {
			return monitor.CycleReport{}, fmt.Errorf("ops: %w", err)
		}
		a.ops.SetRuntime(a.sup)
		a.sup.Go("ops.server", a.ops.Serve)
	}

	a.log.Info("monitor starting",
		logx.Strings("tickers", a.monitor.Tickers()),
		logx.String("schedule", a.sched.Source),
		logx.Bool("alerts_enabled", a.alerts.Enabled()),
	)

	if a.sched.Manual {
		return a.monitor.Run(a.sup.Context(), a.sched)
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", a.applyConfigLoop)
	a.startWatchdog()
	notifyReady(a.log)
	defer notifyStopping(a.log)

	rep, err := a.monitor.Run(a.sup.Context(), a.sched)
	if err != nil {
		return rep, err
	}
	if ctx.Err() == nil {
		// the supervisor canceled on its own
		return rep, a.sup.Err()
	}
	return rep, nil
}

// TestAlerts sends the canned test signal through every active handler.
func (a *App) TestAlerts(ctx context.Context) alerts.Result {
	return a.alerts.TestDispatch(ctx)
}

// TelegramCheck verifies the bot token and sends the canned test message.
func (a *App) TelegramCheck(ctx context.Context) (string, error) {
	tc := a.cfgm.Get().NotificationHandlers.Telegram
	if tc == nil {
		return "", fmt.Errorf("telegram: %w", notify.ErrNotConfigured)
	}
	t := notify.NewTelegram(*tc)
	if !t.IsConfigured() {
		return "", fmt.Errorf("telegram: %w", notify.ErrNotConfigured)
	}
	user, err := t.TestConnection(ctx)
	if err != nil {
		return "", err
	}
	a.log.Info("telegram bot reachable", logx.String("username", user))
	if err := t.SendTestMessage(ctx); err != nil {
		return user, err
	}
	return user, nil
}

// Close releases handlers, the store and the log file.
func (a *App) Close() error {
	var errs []error
	if a.alerts != nil {
		a.alerts.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logs: %w", err))
		}
	}
	return errors.Join(errs...)
}

func firstNonEmpty(xs ...string) string {
	for _, s := range xs {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
