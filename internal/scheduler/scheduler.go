package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ForecastMailer/internal/model"
	"ForecastMailer/internal/notifier"
	"ForecastMailer/internal/recorder"
)

// ErrRunInProgress is returned when a run is requested while another is executing.
var ErrRunInProgress = errors.New("forecast run already in progress")

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner produces a digest for a ticker list.
type Runner interface {
	Run(ctx context.Context, tickers []model.Ticker) (*model.Digest, error)
}

// Service owns the cron trigger and serializes every run, scheduled or manual.
type Service struct {
	cron     *cron.Cron
	loc      *time.Location
	spec     string
	schedule cron.Schedule

	runner   Runner
	tickers  []model.Ticker
	notifier notifier.Notifier
	recorder recorder.Recorder
	timeout  time.Duration

	ctx context.Context
	mu  sync.Mutex
	now func() time.Time
	log zerolog.Logger
}

// NewService creates a Service. ctx bounds scheduled runs; timeout caps each one.
func NewService(ctx context.Context, loc *time.Location, runner Runner, tickers []model.Ticker,
	n notifier.Notifier, rec recorder.Recorder, timeout time.Duration, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Service{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		loc:      loc,
		runner:   runner,
		tickers:  tickers,
		notifier: n,
		recorder: rec,
		timeout:  timeout,
		ctx:      ctx,
		now:      time.Now,
		log:      log,
	}
}

// Register schedules the daily digest using a six-field cron spec.
func (s *Service) Register(spec string) error {
	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}
	s.cron.Schedule(sched, cron.FuncJob(s.scheduledRun))
	s.spec, s.schedule = spec, sched
	return nil
}

// Start starts the cron scheduler.
func (s *Service) Start() {
	s.cron.Start()
	s.log.Info().Str("cron", s.spec).Str("tz", s.loc.String()).Time("next", s.NextRun()).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// Spec returns the registered cron spec.
func (s *Service) Spec() string { return s.spec }

// Location returns the scheduling timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Tickers returns the configured ticker list.
func (s *Service) Tickers() []model.Ticker { return s.tickers }

// NextRun returns the next scheduled execution, or zero before Register.
func (s *Service) NextRun() time.Time {
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(s.now().In(s.loc))
}

// Generate runs the pipeline without recording or delivering.
func (s *Service) Generate(ctx context.Context) (*model.Digest, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()
	return s.runner.Run(ctx, s.tickers)
}

// RunNow runs the pipeline, records the digest and delivers it. Recording
// failures are logged only; a delivery failure is returned with the digest.
func (s *Service) RunNow(ctx context.Context) (*model.Digest, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	d, err := s.runner.Run(ctx, s.tickers)
	if err != nil {
		return nil, fmt.Errorf("generate digest: %w", err)
	}

	if err := s.recorder.RecordDigest(d); err != nil {
		s.log.Error().Err(err).Str("run_id", d.RunID).Msg("record digest")
	}

	deliverErr := s.notifier.Deliver(ctx, d)
	if err := s.recorder.MarkDelivered(d.RunID, deliverErr); err != nil {
		s.log.Error().Err(err).Str("run_id", d.RunID).Msg("record delivery")
	}
	if deliverErr != nil {
		return d, fmt.Errorf("deliver digest: %w", deliverErr)
	}
	s.log.Info().Str("run_id", d.RunID).Int("results", len(d.Results)).Msg("digest delivered")
	return d, nil
}

func (s *Service) scheduledRun() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.log.Info().Msg("running scheduled forecast")
	if _, err := s.RunNow(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Warn().Msg("skipping scheduled run, previous run still in progress")
			return
		}
		s.log.Error().Err(err).Msg("scheduled forecast failed")
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Service) HandleCommand(ctx context.Context, command string) string {
	switch command {
	case "/forecast":
		if _, err := s.RunNow(ctx); err != nil {
			return "❌ Forecast failed: " + err.Error()
		}
		return ""
	case "/status":
		return notifier.FormatStatus(s.spec+" ("+s.loc.String()+")", s.NextRun().Format(time.RFC1123), s.tickers)
	default:
		return "Available commands:\n• /forecast - generate and send the digest now\n• /status - show schedule and tickers"
	}
}
