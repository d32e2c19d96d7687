package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"tradealert/internal/config"
)

// Schedule is a parsed -schedule / monitor.schedule value.
type Schedule struct {
	// Manual runs exactly one cycle.
	Manual bool
	// Spec is the cron spec for periodic modes.
	Spec string
	// Source records which syntax was recognized: manual, hourly, daily, cron, interval.
	Source string
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts:
//
//	manual | hourly | daily
//	cron:<expr> or a bare cron expression / @descriptor
//	interval:<duration> or a bare Go duration ("4h")
//
// dailyAt ("HH:MM", default 09:30) sets the time of day for "daily".
func ParseSchedule(raw, dailyAt string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "manual", "once":
		return Schedule{Manual: true, Source: "manual"}, nil
	case "hourly":
		return Schedule{Spec: "0 * * * *", Source: "hourly"}, nil
	case "daily":
		if strings.TrimSpace(dailyAt) == "" {
			dailyAt = "09:30"
		}
		h, m, err := config.ParseClock(dailyAt)
		if err != nil {
			return Schedule{}, fmt.Errorf("daily_at: %w", err)
		}
		return Schedule{Spec: fmt.Sprintf("%d %d * * *", m, h), Source: "daily"}, nil
	}

	if rest, ok := cutPrefixFold(s, "interval:"); ok {
		return parseInterval(rest)
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		return parseCron(rest)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return interval(d)
	}
	return parseCron(s)
}

func parseInterval(raw string) (Schedule, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q: %w", raw, err)
	}
	return interval(d)
}

func interval(d time.Duration) (Schedule, error) {
	if d < time.Second {
		return Schedule{}, fmt.Errorf("interval must be >= 1s, got %s", d)
	}
	return Schedule{Spec: "@every " + d.String(), Source: "interval"}, nil
}

func parseCron(raw string) (Schedule, error) {
	spec := strings.TrimSpace(raw)
	if _, err := cronParser.Parse(spec); err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return Schedule{Spec: spec, Source: "cron"}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// Next returns the first activation after t, or zero for manual schedules.
func (s Schedule) Next(t time.Time) time.Time {
	if s.Manual {
		return time.Time{}
	}
	sched, err := cronParser.Parse(s.Spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}
