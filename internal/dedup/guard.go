// Package dedup decides whether a produced signal may be dispatched.
//
// Two independent checks suppress a signal: the durable one-shot key
// (ticker, date, decision) and an in-memory per-ticker cooldown window.
package dedup

import (
	"context"
	"strings"
	"sync"
	"time"

	"tradealert/internal/signal"
	"tradealert/internal/storage"
	logx "tradealert/pkg/logx"
)

const DefaultCooldown = time.Hour

// Verdict is the outcome of Check.
type Verdict int

const (
	Allow Verdict = iota
	SuppressedRecorded
	SuppressedCooldown
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case SuppressedRecorded:
		return "already_alerted"
	case SuppressedCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// CooldownEntry is the last alert seen for one ticker.
type CooldownEntry struct {
	Decision string
	At       time.Time
}

type Options struct {
	// Store may be nil; keys are then kept for the process lifetime only.
	Store    storage.Store
	Cooldown time.Duration
	Now      func() time.Time
	// StoreTimeout bounds each store call. Default 5s.
	StoreTimeout time.Duration
}

// Guard composes the one-shot key check and the cooldown window.
// It is safe for concurrent use.
type Guard struct {
	store    storage.Store
	cooldown time.Duration
	now      func() time.Time
	timeout  time.Duration
	log      logx.Logger

	mu sync.Mutex
	// seen mirrors every key recorded by this process so store failures
	// degrade to in-memory suppression.
	seen      map[string]struct{}
	cooldowns map[string]CooldownEntry
}

func New(opts Options, log logx.Logger) *Guard {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Guard{
		store:     opts.Store,
		cooldown:  opts.Cooldown,
		now:       opts.Now,
		timeout:   opts.StoreTimeout,
		log:       log.With(logx.String("comp", "dedup")),
		seen:      map[string]struct{}{},
		cooldowns: map[string]CooldownEntry{},
	}
}

// Check reports whether (ticker, date, decision) may be dispatched now.
// The cooldown check runs first; it needs no I/O.
func (g *Guard) Check(ctx context.Context, ticker, date, decision string) Verdict {
	ticker = strings.TrimSpace(ticker)
	decision = signal.NormalizeDecision(decision)
	key := signal.Key(ticker, date, decision)

	g.mu.Lock()
	if e, ok := g.cooldowns[ticker]; ok && e.Decision == decision && g.now().Sub(e.At) < g.cooldown {
		g.mu.Unlock()
		return SuppressedCooldown
	}
	_, seen := g.seen[key]
	g.mu.Unlock()
	if seen {
		return SuppressedRecorded
	}

	if g.store != nil {
		sctx, cancel := context.WithTimeout(ctx, g.timeout)
		has, err := g.store.Has(sctx, key)
		cancel()
		if err != nil {
			g.log.Warn("alert history lookup failed; using memory only", logx.String("key", key), logx.Err(err))
		} else if has {
			g.mu.Lock()
			g.seen[key] = struct{}{}
			g.mu.Unlock()
			return SuppressedRecorded
		}
	}
	return Allow
}

// Record stores the key and overwrites the ticker's cooldown entry.
// Store failures are logged; the in-memory state is always updated.
func (g *Guard) Record(ctx context.Context, ticker, date, decision string) {
	ticker = strings.TrimSpace(ticker)
	decision = signal.NormalizeDecision(decision)
	key := signal.Key(ticker, date, decision)
	now := g.now()

	g.mu.Lock()
	g.seen[key] = struct{}{}
	g.cooldowns[ticker] = CooldownEntry{Decision: decision, At: now}
	g.mu.Unlock()

	if g.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if _, err := g.store.Put(sctx, key, storage.AlertRecord{Timestamp: now, Alerted: true}); err != nil {
		g.log.Warn("alert history write failed; kept in memory", logx.String("key", key), logx.Err(err))
	}
}

// Cooldown returns the current entry for ticker.
func (g *Guard) Cooldown(ticker string) (CooldownEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.cooldowns[strings.TrimSpace(ticker)]
	return e, ok
}
