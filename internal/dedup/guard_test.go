package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tradealert/internal/storage"
	logx "tradealert/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func TestOneShotKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := newClock()
	g := New(Options{Now: clk.Now}, logx.Nop())

	if v := g.Check(ctx, "AAPL", "2024-01-15", "BUY"); v != Allow {
		t.Fatalf("first check = %v", v)
	}
	g.Record(ctx, "AAPL", "2024-01-15", "BUY")

	// past the cooldown the key alone still suppresses
	clk.Advance(2 * time.Hour)
	if v := g.Check(ctx, "AAPL", "2024-01-15", "buy"); v != SuppressedRecorded {
		t.Fatalf("repeat check = %v; want %v", v, SuppressedRecorded)
	}
}

func TestCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := newClock()
	g := New(Options{Now: clk.Now, Cooldown: time.Hour}, logx.Nop())

	g.Record(ctx, "TSLA", "2024-01-15", "BUY")
	clk.Advance(30 * time.Minute)

	// date rolled over but the same decision is still cooling down
	if v := g.Check(ctx, "TSLA", "2024-01-16", "BUY"); v != SuppressedCooldown {
		t.Fatalf("same decision = %v; want cooldown", v)
	}
	// a different decision is never held back by cooldown
	if v := g.Check(ctx, "TSLA", "2024-01-15", "SELL"); v != Allow {
		t.Fatalf("different decision = %v; want allow", v)
	}
	// another ticker is unaffected
	if v := g.Check(ctx, "AAPL", "2024-01-16", "BUY"); v != Allow {
		t.Fatalf("other ticker = %v", v)
	}

	clk.Advance(31 * time.Minute)
	if v := g.Check(ctx, "TSLA", "2024-01-16", "BUY"); v != Allow {
		t.Fatalf("after window = %v; want allow", v)
	}
}

func TestRecordOverwritesCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := newClock()
	g := New(Options{Now: clk.Now}, logx.Nop())

	g.Record(ctx, "SPY", "2024-01-15", "BUY")
	clk.Advance(time.Minute)
	g.Record(ctx, "SPY", "2024-01-15", "SELL")

	e, ok := g.Cooldown("SPY")
	if !ok || e.Decision != "SELL" || !e.At.Equal(clk.Now()) {
		t.Fatalf("cooldown entry = %+v, %v", e, ok)
	}
	// BUY is no longer the cooling decision, only its key blocks it
	if v := g.Check(ctx, "SPY", "2024-01-16", "BUY"); v != Allow {
		t.Fatalf("BUY next day = %v", v)
	}
}

func TestKeySurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alert_history.json")

	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	New(Options{Store: st}, logx.Nop()).Record(ctx, "QQQ", "2024-01-15", "SELL")
	_ = st.Close()

	st, err = storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	// fresh guard: no cooldown state, so only the durable key can suppress
	if v := New(Options{Store: st}, logx.Nop()).Check(ctx, "QQQ", "2024-01-15", "SELL"); v != SuppressedRecorded {
		t.Fatalf("after restart = %v", v)
	}
}

type brokenStore struct{}

var errBroken = errors.New("disk on fire")

func (brokenStore) Has(context.Context, string) (bool, error) { return false, errBroken }
func (brokenStore) Put(context.Context, string, storage.AlertRecord) (bool, error) {
	return false, errBroken
}
func (brokenStore) Prune(context.Context, time.Time) (int, error) { return 0, errBroken }
func (brokenStore) Close() error                                  { return nil }

func TestStoreFailureFallsBackToMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := newClock()
	g := New(Options{Store: brokenStore{}, Now: clk.Now}, logx.Nop())

	if v := g.Check(ctx, "AAPL", "2024-01-15", "BUY"); v != Allow {
		t.Fatalf("check with broken store = %v", v)
	}
	g.Record(ctx, "AAPL", "2024-01-15", "BUY")
	clk.Advance(2 * time.Hour)
	if v := g.Check(ctx, "AAPL", "2024-01-15", "BUY"); v != SuppressedRecorded {
		t.Fatalf("memory fallback = %v", v)
	}
}
