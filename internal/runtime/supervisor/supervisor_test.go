package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPanicIsRecoveredAndCancels(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("boom", func(context.Context) { panic("kaboom") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want panic error", err)
	}

	snap := s.Snapshot()
	if snap.Active != 0 || snap.Started != 2 {
		t.Fatalf("counters = %+v", snap)
	}
	var found bool
	for _, g := range snap.Goroutines {
		if g.Name == "boom" {
			found = true
			if g.Panics != 1 || g.LastPanic != "kaboom" {
				t.Fatalf("boom stats = %+v", g)
			}
		}
	}
	if !found {
		t.Fatalf("no stats for boom: %+v", snap.Goroutines)
	}
}

func TestCanceledIsCleanStop(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestErrorWithoutCancelKeepsRunning(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("fails", func(context.Context) error { return errors.New("nope") })

	deadline := time.Now().Add(2 * time.Second)
	for s.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Err() == nil || s.Err().Error() != "fails: nope" {
		t.Fatalf("Err = %v", s.Err())
	}
	if s.Context().Err() != nil {
		t.Fatal("context canceled without WithCancelOnError")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err == nil || err.Error() != "fails: nope" {
		t.Fatalf("Stop = %v, want the first error", err)
	}
}
