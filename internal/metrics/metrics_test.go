package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tradealert/internal/monitor"
)

func TestRecorder(t *testing.T) {
	t.Parallel()
	r := New()
	r.HandlerResult("webhook", true, 20*time.Millisecond)
	r.HandlerResult("webhook", false, time.Second)
	r.HandlerResult("email", true, time.Second)

	if got := testutil.ToFloat64(r.handlerSends.WithLabelValues("webhook", "ok")); got != 1 {
		t.Fatalf("webhook ok=%v", got)
	}
	if got := testutil.ToFloat64(r.handlerSends.WithLabelValues("webhook", "fail")); got != 1 {
		t.Fatalf("webhook fail=%v", got)
	}

	r.TickerOutcome("AAPL", monitor.OutcomeAlerted)
	r.TickerOutcome("BADTICK", monitor.OutcomeError)
	r.TickerOutcome("MSFT", monitor.OutcomeError)
	if got := testutil.ToFloat64(r.tickerOutcomes.WithLabelValues("error")); got != 2 {
		t.Fatalf("errors=%v", got)
	}

	start := time.Unix(1700000000, 0)
	r.CycleDone(monitor.CycleReport{Started: start, Took: 3 * time.Second})
	if got := testutil.ToFloat64(r.cycles); got != 1 {
		t.Fatalf("cycles=%v", got)
	}
	if got := testutil.ToFloat64(r.lastCycle); got != 1700000003 {
		t.Fatalf("last cycle=%v", got)
	}
	if n := testutil.CollectAndCount(r.handlerLatency); n != 2 {
		t.Fatalf("latency series=%d", n)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	t.Parallel()
	a, b := New(), New()
	a.HandlerResult("sms", true, 0)
	if got := testutil.ToFloat64(b.handlerSends.WithLabelValues("sms", "ok")); got != 0 {
		t.Fatalf("registries leaked: %v", got)
	}
}
