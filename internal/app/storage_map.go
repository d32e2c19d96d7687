package app

import (
	"fmt"
	"strings"
	"time"

	"tradealert/internal/config"
	"tradealert/internal/storage"
	logx "tradealert/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{Driver: "none"}, nil
	}
	retention, err := sc.RetentionDuration()
	if err != nil {
		return storage.Config{}, err
	}
	out := storage.Config{
		Driver:    driver,
		Path:      strings.TrimSpace(sc.Path),
		Retention: retention,
		Redis: storage.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
	}
	switch driver {
	case "file", "sqlite", "sqlite3":
		if out.Path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		if driver != "file" {
			out.BusyTimeout, err = sc.BusyTimeoutDuration()
			if err != nil {
				return storage.Config{}, err
			}
		}
	case "redis":
		if strings.TrimSpace(out.Redis.Addr) == "" {
			return storage.Config{}, fmt.Errorf("storage.redis.addr is required when storage.driver=redis")
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, nil
}

func mapLogConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: lc.FileEnabled(),
			Path:    lc.File.Path,
		},
	}
}

// monitorTimings resolves the monitor durations and location.
type monitorTimings struct {
	delay    time.Duration
	cooldown time.Duration
	location *time.Location
}

func mapMonitorTimings(mc config.MonitorConfig) (monitorTimings, error) {
	var (
		out monitorTimings
		err error
	)
	if out.delay, err = mc.TickerDelayDuration(); err != nil {
		return out, err
	}
	if out.cooldown, err = mc.CooldownDuration(); err != nil {
		return out, err
	}
	out.location = time.Local
	if tz := strings.TrimSpace(mc.Timezone); tz != "" {
		if out.location, err = time.LoadLocation(tz); err != nil {
			return out, fmt.Errorf("monitor.timezone: invalid %q: %w", tz, err)
		}
	}
	return out, nil
}
