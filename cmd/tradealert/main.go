package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradealert/internal/app"
	"tradealert/internal/config"
	"tradealert/internal/monitor"
	logx "tradealert/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath      string
		envFile      string
		tickers      string
		date         string
		schedule     string
		createConfig bool
		force        bool
		testAlerts   bool
		tgCheck      bool
	)
	flag.StringVar(&cfgPath, "config", config.DefaultPath, "path to config yaml/json")
	flag.StringVar(&envFile, "env", ".env", "dotenv file with secrets (skipped if missing)")
	flag.StringVar(&tickers, "tickers", "", "comma separated tickers (default from config: SPY,QQQ,AAPL)")
	flag.StringVar(&date, "date", "", "analysis date YYYY-MM-DD (default today)")
	flag.StringVar(&schedule, "schedule", "", "manual | hourly | daily | <cron> | <interval> (default from config)")
	flag.BoolVar(&createConfig, "create-config", false, "write a config scaffold to -config and exit")
	flag.BoolVar(&force, "force", false, "with -create-config, overwrite an existing file")
	flag.BoolVar(&testAlerts, "test-alerts", false, "send a test alert through every configured handler and exit")
	flag.BoolVar(&tgCheck, "telegram-check", false, "verify the telegram bot and send a test message")
	flag.Parse()

	// used until the config's own logger exists
	boot := logx.NewConsole("info")

	if createConfig {
		if err := config.WriteScaffold(cfgPath, force); err != nil {
			if errors.Is(err, config.ErrExists) {
				boot.Error("config already exists (use -force to overwrite)", logx.String("path", cfgPath))
			} else {
				boot.Error("create config failed", logx.Err(err))
			}
			return 1
		}
		boot.Info("config written", logx.String("path", cfgPath))
		return 0
	}

	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			boot.Error("invalid -date; want YYYY-MM-DD", logx.String("date", date))
			return 1
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath: cfgPath,
		EnvFiles:   []string{envFile},
		Tickers:    splitTickers(tickers),
		Date:       date,
		Schedule:   schedule,
	})
	if err != nil {
		if errors.Is(err, monitor.ErrNoTickers) {
			boot.Error("no tickers configured")
		} else {
			boot.Error("startup failed", logx.Err(err))
		}
		return 1
	}
	defer func() { _ = a.Close() }()
	log := a.Logger()

	switch {
	case testAlerts:
		res := a.TestAlerts(ctx)
		log.Info("test alerts finished", logx.Any("results", res), logx.Int("succeeded", res.Succeeded()))
		if res.Succeeded() == 0 {
			return 1
		}
		return 0
	case tgCheck:
		user, err := a.TelegramCheck(ctx)
		if err != nil {
			log.Error("telegram check failed", logx.Err(err))
			return 1
		}
		log.Info("telegram check passed", logx.String("bot", user))
		return 0
	}

	rep, err := a.Run(ctx)
	if err != nil {
		log.Error("monitor stopped", logx.Err(err))
		return 1
	}
	if a.Schedule().Manual && rep.AllFailed() {
		log.Error("every ticker failed", logx.Int("processed", rep.Processed))
		return 1
	}
	return 0
}

func splitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
