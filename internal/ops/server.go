// Package ops serves the operator endpoint: health, statistics, metrics
// and the runtime alert switch.
package ops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradealert/internal/alerts"
	"tradealert/internal/monitor"
	"tradealert/internal/runtime/supervisor"
	logx "tradealert/pkg/logx"
)

// StatsSource is satisfied by *monitor.Monitor.
type StatsSource interface {
	Stats() monitor.Stats
	Running() bool
}

// AlertSwitch is satisfied by *alerts.Manager.
type AlertSwitch interface {
	Enabled() bool
	Enable()
	Disable()
	Status() []alerts.HandlerStatus
}

// RuntimeSource is satisfied by *supervisor.Supervisor.
type RuntimeSource interface {
	Snapshot() supervisor.Snapshot
}

type Server struct {
	echo *echo.Echo
	addr string
	log  logx.Logger

	mu      sync.RWMutex
	runtime RuntimeSource
}

type StatsResponse struct {
	Monitor       monitor.Stats          `json:"monitor"`
	CycleRunning  bool                   `json:"cycle_running"`
	AlertsEnabled bool                   `json:"alerts_enabled"`
	Handlers      []alerts.HandlerStatus `json:"handlers"`
	// Runtime is omitted until SetRuntime is called.
	Runtime *supervisor.Snapshot `json:"runtime,omitempty"`
}

// Config of the ops listener. Pprof mounts net/http/pprof under /debug/pprof/.
type Config struct {
	Addr  string
	Pprof bool
}

func New(cfg Config, stats StatsSource, sw AlertSwitch, reg *prometheus.Registry, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "ops"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	s := &Server{echo: e, addr: cfg.Addr, log: log}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})
	e.GET("/stats", func(c echo.Context) error {
		resp := StatsResponse{
			Monitor:       stats.Stats(),
			CycleRunning:  stats.Running(),
			AlertsEnabled: sw.Enabled(),
			Handlers:      sw.Status(),
		}
		if rs := s.runtimeSource(); rs != nil {
			snap := rs.Snapshot()
			resp.Runtime = &snap
		}
		return c.JSON(http.StatusOK, resp)
	})
	e.POST("/alerts/enable", func(c echo.Context) error {
		sw.Enable()
		log.Info("alerts enabled via ops endpoint", logx.String("remote", c.RealIP()))
		return c.JSON(http.StatusOK, map[string]bool{"alerts_enabled": true})
	})
	e.POST("/alerts/disable", func(c echo.Context) error {
		sw.Disable()
		log.Info("alerts disabled via ops endpoint", logx.String("remote", c.RealIP()))
		return c.JSON(http.StatusOK, map[string]bool{"alerts_enabled": false})
	})
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	if cfg.Pprof {
		mountPprof(e)
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// SetRuntime adds goroutine accounting to /stats.
func (s *Server) SetRuntime(rs RuntimeSource) {
	s.mu.Lock()
	s.runtime = rs
	s.mu.Unlock()
}

func (s *Server) runtimeSource() RuntimeSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtime
}

// Listen binds the address so bind errors surface before Serve runs.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.echo.Listener = ln
	s.log.Info("ops server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Serve blocks until ctx is done, then shuts the server down.
// Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	if s.echo.Listener == nil {
		return errors.New("ops: Serve called before Listen")
	}
	errc := make(chan error, 1)
	go func() { errc <- s.echo.Start("") }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		s.log.Warn("ops server shutdown", logx.Err(err))
		return nil
	}
	<-errc
	return nil
}

func mountPprof(e *echo.Echo) {
	g := e.Group("/debug/pprof")
	g.GET("/", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	g.GET("/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	g.POST("/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	// named profiles: heap, goroutine, allocs, block, mutex, threadcreate
	g.GET("/:name", func(c echo.Context) error {
		pprof.Handler(c.Param("name")).ServeHTTP(c.Response(), c.Request())
		return nil
	})
}
