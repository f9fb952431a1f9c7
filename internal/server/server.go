package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ForecastMailer/internal/model"
	"ForecastMailer/internal/recorder"
	"ForecastMailer/internal/scheduler"
)

const serviceName = "Market Forecast Email Service"

// Trigger is the run surface the HTTP API drives.
type Trigger interface {
	RunNow(ctx context.Context) (*model.Digest, error)
	Generate(ctx context.Context) (*model.Digest, error)
	Spec() string
	NextRun() time.Time
	Location() *time.Location
	Tickers() []model.Ticker
}

// Config holds server settings.
type Config struct {
	Port            int
	Recipients      []string
	TriggerInterval time.Duration
	TriggerBurst    int
	RunTimeout      time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps Echo with the forecast endpoints.
type Server struct {
	echo    *echo.Echo
	cfg     Config
	trigger Trigger
	history recorder.Recorder
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New builds the server. gatherer backs /metrics.
func New(cfg Config, trigger Trigger, history recorder.Recorder, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	if cfg.TriggerInterval <= 0 {
		cfg.TriggerInterval = time.Minute
	}
	if cfg.TriggerBurst <= 0 {
		cfg.TriggerBurst = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if history == nil {
		history = recorder.NewNoopRecorder()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		cfg:     cfg,
		trigger: trigger,
		history: history,
		limiter: rate.NewLimiter(rate.Every(cfg.TriggerInterval), cfg.TriggerBurst),
		log:     log,
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogging())

	e.GET("/health", s.health)
	e.GET("/history", s.recentRuns)
	e.POST("/send-forecast", s.sendForecast, s.rateLimited())
	e.GET("/test-forecast", s.testForecast, s.rateLimited())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens in the background.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.log.Debug().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("http request")
			return err
		}
	}
}

func (s *Server) rateLimited() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.limiter.Allow() {
				return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "manual trigger rate limit exceeded, try again later"})
			}
			return next(c)
		}
	}
}

type healthResponse struct {
	Status        string   `json:"status"`
	Service       string   `json:"service"`
	Recipients    []string `json:"recipients"`
	Tickers       []string `json:"tickers"`
	Schedule      string   `json:"schedule"`
	Timezone      string   `json:"timezone"`
	NextExecution string   `json:"nextExecution"`
}

type runResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	RunID   string        `json:"run_id,omitempty"`
	Results int           `json:"results"`
	Digest  *model.Digest `json:"forecast,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) health(c echo.Context) error {
	syms := make([]string, 0, len(s.trigger.Tickers()))
	for _, t := range s.trigger.Tickers() {
		syms = append(syms, t.Symbol)
	}
	next := ""
	if n := s.trigger.NextRun(); !n.IsZero() {
		next = n.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:        "running",
		Service:       serviceName,
		Recipients:    s.cfg.Recipients,
		Tickers:       syms,
		Schedule:      s.trigger.Spec(),
		Timezone:      s.trigger.Location().String(),
		NextExecution: next,
	})
}

func (s *Server) sendForecast(c echo.Context) error {
	ctx, cancel := s.runContext(c)
	defer cancel()

	d, err := s.trigger.RunNow(ctx)
	if err != nil {
		return s.runError(c, err)
	}
	return c.JSON(http.StatusOK, runResponse{
		Success: true,
		Message: "Forecast sent successfully",
		RunID:   d.RunID,
		Results: len(d.Results),
	})
}

func (s *Server) testForecast(c echo.Context) error {
	ctx, cancel := s.runContext(c)
	defer cancel()

	d, err := s.trigger.Generate(ctx)
	if err != nil {
		return s.runError(c, err)
	}
	return c.JSON(http.StatusOK, runResponse{Success: true, RunID: d.RunID, Results: len(d.Results), Digest: d})
}

func (s *Server) recentRuns(c echo.Context) error {
	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 100"})
		}
		limit = n
	}
	runs, err := s.history.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if runs == nil {
		runs = []recorder.RunSummary{}
	}
	return c.JSON(http.StatusOK, runs)
}

// runContext keeps request values but not its cancellation: a started run
// completes even if the client goes away. RunTimeout is the only bound.
func (s *Server) runContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.Request().Context())
	if s.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) runError(c echo.Context, err error) error {
	if errors.Is(err, scheduler.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}
	s.log.Error().Err(err).Str("path", c.Path()).Msg("manual run failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
