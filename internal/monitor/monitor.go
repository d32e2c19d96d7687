// Package monitor drives evaluation cycles over the configured tickers.
//
// A cycle asks the decision producer about every ticker in turn, runs
// alert-worthy decisions through the dedup guard and hands the survivors
// to the alert manager. Tickers are evaluated sequentially and throttled.
package monitor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"tradealert/internal/alerts"
	"tradealert/internal/dedup"
	"tradealert/internal/producer"
	"tradealert/internal/signal"
	logx "tradealert/pkg/logx"
)

var ErrNoTickers = errors.New("no tickers configured")

// Producer is the external decision engine.
type Producer interface {
	Analyze(ctx context.Context, ticker, date string) (producer.Decision, error)
}

// Dispatcher is the part of *alerts.Manager the monitor needs.
type Dispatcher interface {
	ShouldAlert(decision string) bool
	Dispatch(ctx context.Context, ticker, decision, date string, analysis map[string]any, summary string) alerts.Result
}

// Observer receives per-cycle outcomes (metrics).
type Observer interface {
	TickerOutcome(ticker string, outcome Outcome)
	CycleDone(r CycleReport)
}

// Outcome of one ticker within a cycle.
type Outcome string

const (
	OutcomeError      Outcome = "error"
	OutcomeNoAlert    Outcome = "no_alert"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeAlerted    Outcome = "alerted"
	OutcomeSkipped    Outcome = "skipped"
)

type Options struct {
	Tickers []string
	// Date pins the evaluated date; empty means today in Location.
	Date string
	// TickerDelay is the minimum gap between producer calls. Default 1s.
	TickerDelay time.Duration
	Location    *time.Location
	Now         func() time.Time
	Observer    Observer
}

// AlertEntry is the last dispatched alert for a ticker.
type AlertEntry struct {
	Decision  string        `json:"decision"`
	Date      string        `json:"date"`
	At        time.Time     `json:"at"`
	Delivered alerts.Result `json:"delivered"`
}

// Stats is a read-only snapshot of process-lifetime counters.
type Stats struct {
	Cycles     int64                 `json:"cycles"`
	Analyses   int64                 `json:"analyses"`
	Alerts     int64                 `json:"alerts"`
	Errors     int64                 `json:"errors"`
	StartTime  time.Time             `json:"start_time"`
	LastAlerts map[string]AlertEntry `json:"last_alerts"`
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Date       string
	Started    time.Time
	Took       time.Duration
	Processed  int
	Alerts     int
	Suppressed int
	Errors     int
	Outcomes   map[string]Outcome
}

// AllFailed reports whether every evaluated ticker errored.
func (r CycleReport) AllFailed() bool {
	return r.Processed > 0 && r.Errors == r.Processed
}

type Monitor struct {
	opts     Options
	producer Producer
	alerts   Dispatcher
	guard    *dedup.Guard
	log      logx.Logger

	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

func New(opts Options, p Producer, d Dispatcher, g *dedup.Guard, log logx.Logger) (*Monitor, error) {
	tickers := make([]string, 0, len(opts.Tickers))
	seen := map[string]struct{}{}
	for _, t := range opts.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tickers = append(tickers, t)
	}
	if len(tickers) == 0 {
		return nil, ErrNoTickers
	}
	if p == nil || d == nil || g == nil {
		return nil, errors.New("monitor: producer, dispatcher and guard are required")
	}
	opts.Tickers = tickers
	if opts.TickerDelay < 0 {
		opts.TickerDelay = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{
		opts:     opts,
		producer: p,
		alerts:   d,
		guard:    g,
		log:      log.With(logx.String("comp", "monitor")),
		stats:    Stats{StartTime: opts.Now(), LastAlerts: map[string]AlertEntry{}},
	}, nil
}

func (m *Monitor) Tickers() []string { return append([]string(nil), m.opts.Tickers...) }

func (m *Monitor) date() string {
	if d := strings.TrimSpace(m.opts.Date); d != "" {
		return d
	}
	return m.opts.Now().In(m.opts.Location).Format(signal.DateLayout)
}

// Running reports whether a cycle is in progress.
func (m *Monitor) Running() bool { return m.running.Load() }

// ErrCycleRunning is returned by TryRunCycle when a cycle is already in progress.
var ErrCycleRunning = errors.New("cycle already running")

// TryRunCycle runs one cycle unless another is in progress.
func (m *Monitor) TryRunCycle(ctx context.Context) (CycleReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Warn("cycle still running; skipping")
		return CycleReport{}, ErrCycleRunning
	}
	defer m.running.Store(false)
	return m.runCycle(ctx), nil
}

// RunCycle evaluates every ticker once. It waits for a cycle already in progress.
func (m *Monitor) RunCycle(ctx context.Context) CycleReport {
	for !m.running.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return CycleReport{}
		case <-time.After(50 * time.Millisecond):
		}
	}
	defer m.running.Store(false)
	return m.runCycle(ctx)
}

func (m *Monitor) runCycle(ctx context.Context) CycleReport {
	date := m.date()
	rep := CycleReport{Date: date, Started: m.opts.Now(), Outcomes: make(map[string]Outcome, len(m.opts.Tickers))}
	m.log.Info("cycle started", logx.String("date", date), logx.Strings("tickers", m.opts.Tickers))

	var lim *rate.Limiter
	if m.opts.TickerDelay > 0 {
		lim = rate.NewLimiter(rate.Every(m.opts.TickerDelay), 1)
	}

	for _, ticker := range m.opts.Tickers {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				// cancelled between tickers; the rest are not evaluated
				for _, t := range m.opts.Tickers {
					if _, done := rep.Outcomes[t]; !done {
						rep.Outcomes[t] = OutcomeSkipped
					}
				}
				m.log.Warn("cycle interrupted", logx.Err(err))
				break
			}
		}
		out := m.evaluate(ctx, ticker, date)
		rep.Outcomes[ticker] = out
		rep.Processed++
		switch out {
		case OutcomeError:
			rep.Errors++
		case OutcomeAlerted:
			rep.Alerts++
		case OutcomeSuppressed:
			rep.Suppressed++
		}
		if m.opts.Observer != nil {
			m.opts.Observer.TickerOutcome(ticker, out)
		}
	}
	rep.Took = m.opts.Now().Sub(rep.Started)

	m.mu.Lock()
	m.stats.Cycles++
	m.mu.Unlock()

	m.log.Info("cycle complete",
		logx.String("date", date),
		logx.Int("processed", rep.Processed),
		logx.Int("alerts", rep.Alerts),
		logx.Int("suppressed", rep.Suppressed),
		logx.Int("errors", rep.Errors),
		logx.Duration("took", rep.Took),
	)
	if m.opts.Observer != nil {
		m.opts.Observer.CycleDone(rep)
	}
	return rep
}

func (m *Monitor) evaluate(ctx context.Context, ticker, date string) Outcome {
	log := m.log.With(logx.String("ticker", ticker), logx.String("date", date))

	d, err := m.producer.Analyze(ctx, ticker, date)
	if err != nil {
		m.mu.Lock()
		m.stats.Errors++
		m.mu.Unlock()
		log.Error("analysis failed", logx.Err(err))
		return OutcomeError
	}
	m.mu.Lock()
	m.stats.Analyses++
	m.mu.Unlock()

	decision := signal.NormalizeDecision(d.Decision)
	log.Info("analysis complete", logx.String("decision", decision))
	if !m.alerts.ShouldAlert(decision) {
		return OutcomeNoAlert
	}

	if v := m.guard.Check(ctx, ticker, date, decision); v != dedup.Allow {
		log.Info("alert suppressed", logx.String("decision", decision), logx.String("reason", v.String()))
		return OutcomeSuppressed
	}

	// dispatch must not be cut short by shutdown
	dctx := context.WithoutCancel(ctx)
	res := m.alerts.Dispatch(dctx, ticker, decision, date, d.Analysis, d.Summary)
	if len(res) == 0 {
		// disabled or no handlers: nothing was attempted, so nothing is recorded
		return OutcomeNoAlert
	}
	m.guard.Record(dctx, ticker, date, decision)

	m.mu.Lock()
	m.stats.Alerts++
	m.stats.LastAlerts[ticker] = AlertEntry{Decision: decision, Date: date, At: m.opts.Now(), Delivered: res}
	m.mu.Unlock()
	log.Info("alert dispatched", logx.String("decision", decision), logx.Int("delivered", res.Succeeded()), logx.Int("handlers", len(res)))
	return OutcomeAlerted
}

// Stats returns a copy of the lifetime counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.LastAlerts = make(map[string]AlertEntry, len(m.stats.LastAlerts))
	for k, v := range m.stats.LastAlerts {
		s.LastAlerts[k] = v
	}
	return s
}

// Run executes sched: one cycle for manual schedules, otherwise cycles on
// every activation until ctx is done. Overlapping activations are skipped.
func (m *Monitor) Run(ctx context.Context, sched Schedule) (CycleReport, error) {
	if sched.Manual {
		return m.RunCycle(ctx), nil
	}

	cl := cronLogger{log: m.log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(m.opts.Location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(sched.Spec, func() { _, _ = m.TryRunCycle(ctx) }); err != nil {
		return CycleReport{}, err
	}
	c.Start()
	m.log.Info("monitor scheduled",
		logx.String("schedule", sched.Source),
		logx.String("spec", sched.Spec),
		logx.String("tz", m.opts.Location.String()),
		logx.Time("next_run", sched.Next(m.opts.Now().In(m.opts.Location))),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	m.LogStats()
	return CycleReport{}, nil
}

// LogStats writes the lifetime statistics, including the last alert per ticker.
func (m *Monitor) LogStats() {
	s := m.Stats()
	m.log.Info("monitor statistics",
		logx.Int64("cycles", s.Cycles),
		logx.Int64("analyses", s.Analyses),
		logx.Int64("alerts", s.Alerts),
		logx.Int64("errors", s.Errors),
		logx.Time("start_time", s.StartTime),
		logx.Duration("uptime", m.opts.Now().Sub(s.StartTime)),
	)
	tickers := make([]string, 0, len(s.LastAlerts))
	for t := range s.LastAlerts {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		a := s.LastAlerts[t]
		m.log.Info("last alert",
			logx.String("ticker", t),
			logx.String("decision", a.Decision),
			logx.String("date", a.Date),
			logx.Time("at", a.At),
		)
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
