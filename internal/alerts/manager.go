// Package alerts owns the active handler set and the global alert policy.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tradealert/internal/notify"
	"tradealert/internal/signal"
	logx "tradealert/pkg/logx"
)

// Result maps handler name to delivery success. It is never persisted.
type Result map[string]bool

// Succeeded counts successful handlers.
func (r Result) Succeeded() int {
	n := 0
	for _, ok := range r {
		if ok {
			n++
		}
	}
	return n
}

// Recorder observes every handler attempt (metrics).
type Recorder interface {
	HandlerResult(name string, ok bool, took time.Duration)
}

// DefaultSendTimeout caps a single handler call on top of the handler's own timeout.
const DefaultSendTimeout = 30 * time.Second

type Options struct {
	Enabled bool
	// AlertOn is the decision filter. Empty means BUY and SELL.
	AlertOn []string
	// Handlers in configuration order. Unconfigured ones are dropped.
	Handlers    []notify.Handler
	SendTimeout time.Duration
	Recorder    Recorder
	Now         func() time.Time
}

// HandlerStatus describes one active handler.
type HandlerStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

type Manager struct {
	log     logx.Logger
	enabled atomic.Bool

	// mu is held for reading across a whole fan-out so Apply never closes
	// a handler that is still sending.
	mu       sync.RWMutex
	alertOn  map[string]struct{}
	handlers []notify.Handler
	timeout  time.Duration
	rec      Recorder
	now      func() time.Time
}

func New(opts Options, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{log: log.With(logx.String("comp", "alerts"))}
	m.apply(opts)
	return m
}

func (m *Manager) apply(opts Options) []notify.Handler {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	filter := map[string]struct{}{}
	for _, d := range opts.AlertOn {
		if d = signal.NormalizeDecision(d); d != "" {
			filter[d] = struct{}{}
		}
	}
	if len(filter) == 0 {
		filter[signal.Buy] = struct{}{}
		filter[signal.Sell] = struct{}{}
	}

	active := make([]notify.Handler, 0, len(opts.Handlers))
	for _, h := range opts.Handlers {
		if h == nil {
			continue
		}
		if !h.IsConfigured() {
			m.log.Warn("handler enabled but not configured; excluded", logx.String("handler", h.Name()))
			continue
		}
		active = append(active, h)
	}
	if len(active) == 0 {
		m.log.Warn("no notification handlers configured or available")
	}

	m.mu.Lock()
	old := m.handlers
	m.alertOn = filter
	m.handlers = active
	m.timeout = opts.SendTimeout
	m.rec = opts.Recorder
	m.now = opts.Now
	m.mu.Unlock()
	m.enabled.Store(opts.Enabled)

	names := make([]string, len(active))
	for i, h := range active {
		names[i] = h.Name()
	}
	m.log.Info("alert handlers ready", logx.Strings("handlers", names), logx.Bool("enabled", opts.Enabled))
	return old
}

// Apply swaps in a new policy and handler set, waiting for in-flight
// dispatches, then closes handlers that were replaced.
func (m *Manager) Apply(opts Options) {
	old := m.apply(opts)
	keep := map[notify.Handler]struct{}{}
	m.mu.RLock()
	for _, h := range m.handlers {
		keep[h] = struct{}{}
	}
	m.mu.RUnlock()
	for _, h := range old {
		if _, ok := keep[h]; ok {
			continue
		}
		closeHandler(h, m.log)
	}
}

// Close releases handler connections.
func (m *Manager) Close() {
	m.mu.Lock()
	hs := m.handlers
	m.handlers = nil
	m.mu.Unlock()
	for _, h := range hs {
		closeHandler(h, m.log)
	}
}

func closeHandler(h notify.Handler, log logx.Logger) {
	if c, ok := h.(notify.Closer); ok {
		if err := c.Close(); err != nil {
			log.Debug("handler close failed", logx.String("handler", h.Name()), logx.Err(err))
		}
	}
}

func (m *Manager) Enabled() bool { return m.enabled.Load() }

func (m *Manager) Enable() {
	m.enabled.Store(true)
	m.log.Info("alerts enabled")
}

func (m *Manager) Disable() {
	m.enabled.Store(false)
	m.log.Info("alerts disabled")
}

// ShouldAlert reports whether decision passes the filter.
func (m *Manager) ShouldAlert(decision string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.alertOn[signal.NormalizeDecision(decision)]
	return ok
}

// Status lists the active handlers in dispatch order.
func (m *Manager) Status() []HandlerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HandlerStatus, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = HandlerStatus{Name: h.Name(), Configured: h.IsConfigured()}
	}
	return out
}

// Dispatch sends one signal to every active handler.
// It never fails as a whole: handler errors and panics become false entries.
func (m *Manager) Dispatch(ctx context.Context, ticker, decision, date string, analysis map[string]any, summary string) Result {
	decision = signal.NormalizeDecision(decision)
	if !m.Enabled() {
		m.log.Info("alerts disabled; skipping", logx.String("ticker", ticker), logx.String("decision", decision))
		return Result{}
	}
	if !m.ShouldAlert(decision) {
		m.log.Info("decision filtered", logx.String("ticker", ticker), logx.String("decision", decision))
		return Result{}
	}
	m.mu.RLock()
	now := m.now()
	m.mu.RUnlock()
	s := signal.New(ticker, decision, date, analysis, summary, now)
	m.log.Info("sending trade alert",
		logx.String("signal_id", s.ID),
		logx.String("ticker", s.Ticker),
		logx.String("decision", s.Decision),
		logx.String("date", s.Date),
	)
	return m.fanOut(ctx, s, "alert")
}

// TestDispatch sends a canned TEST/BUY signal, ignoring the enabled flag
// and the decision filter. For operator verification only.
func (m *Manager) TestDispatch(ctx context.Context) Result {
	m.mu.RLock()
	now := m.now()
	m.mu.RUnlock()
	s := signal.New("TEST", signal.Buy, now.Format(signal.DateLayout),
		map[string]any{"test": true},
		"This is a test alert from your Trading Agents system.", now)
	m.log.Info("testing all alert handlers", logx.String("signal_id", s.ID))
	return m.fanOut(ctx, s, "test alert")
}

type outcome struct {
	ok   bool
	err  error
	took time.Duration
}

func (m *Manager) fanOut(ctx context.Context, s signal.TradeSignal, what string) Result {
	// In-flight sends finish or time out on their own; shutdown does not cut them.
	ctx = context.WithoutCancel(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	res := Result{}
	if len(m.handlers) == 0 {
		return res
	}

	outs := make([]outcome, len(m.handlers))
	var wg sync.WaitGroup
	for i, h := range m.handlers {
		wg.Add(1)
		go func(i int, h notify.Handler) {
			defer wg.Done()
			outs[i] = m.sendOne(ctx, h, s)
		}(i, h)
	}
	wg.Wait()

	for i, h := range m.handlers {
		o := outs[i]
		res[h.Name()] = o.ok
		if m.rec != nil {
			m.rec.HandlerResult(h.Name(), o.ok, o.took)
		}
		fields := []logx.Field{
			logx.String("handler", h.Name()),
			logx.String("signal_id", s.ID),
			logx.String("ticker", s.Ticker),
			logx.Duration("took", o.took),
		}
		if o.ok {
			m.log.Info(what+" sent", fields...)
		} else {
			m.log.Warn(what+" failed", append(fields, logx.Err(o.err))...)
		}
	}
	return res
}

func (m *Manager) sendOne(ctx context.Context, h notify.Handler, s signal.TradeSignal) (o outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: fmt.Errorf("panic: %v", r), took: time.Since(start)}
			m.log.Error("handler panic",
				logx.String("handler", h.Name()),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 12)),
			)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := h.Send(ctx, s)
	return outcome{ok: err == nil, err: err, took: time.Since(start)}
}

