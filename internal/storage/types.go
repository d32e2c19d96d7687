package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	Retention   time.Duration // records older than this are pruned; 0 keeps everything
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisOptions
	// Location reads zone-less history timestamps; nil means time.Local.
	Location *time.Location
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// AlertRecord is the persisted value of one alert history key.
type AlertRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Alerted   bool      `json:"alerted"`
}

// zoneless is the ISO 8601 form without an offset, e.g.
// "2024-01-15T10:00:00.123456". Fractional seconds are optional when parsing.
const zoneless = "2006-01-02T15:04:05"

// ParseTimestamp accepts RFC 3339 and zone-less ISO 8601 (with a 'T' or a
// space separator). Zone-less values are read in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(zoneless, strings.Replace(s, " ", "T", 1), loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q: not RFC 3339 or ISO 8601", raw)
}

// Store is the alert history API used by the dedup guard.
type Store interface {
	// Has reports whether key was already recorded.
	Has(ctx context.Context, key string) (bool, error)
	// Put records key once. It returns false when the key already existed,
	// in which case the stored record is left untouched.
	Put(ctx context.Context, key string, rec AlertRecord) (bool, error)
	// Prune removes records older than before and returns how many went away.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}
