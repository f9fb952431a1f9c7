package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ForecastMailer/internal/logger"
	"ForecastMailer/internal/scheduler"
	"ForecastMailer/internal/server"
)

const telegramPollTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP trigger API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.resolvePath())
		},
	}
}

func serve(ctx context.Context, path string) error {
	a, err := newApp(path, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	log := a.log
	log.Info().Str("config", path).Msg("ForecastMailer starting")

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	rec := a.recorder()
	multi, tg := a.notifiers()
	log.Info().Int("channels", multi.Len()).Msg("delivery channels ready")

	svc := scheduler.NewService(ctx, loc, a.pipeline, cfg.Tickers, multi, rec,
		cfg.Server.RunTimeout, logger.Component(log, "scheduler"))
	if err := svc.Register(cfg.Schedule.Cron); err != nil {
		return fmt.Errorf("register cron: %w", err)
	}
	svc.Start()
	defer svc.Stop()

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		Recipients:      cfg.Email.To,
		TriggerInterval: cfg.Server.TriggerInterval,
		TriggerBurst:    cfg.Server.TriggerBurst,
		RunTimeout:      cfg.Server.RunTimeout,
	}, svc, rec, a.registry, logger.Component(log, "http"))
	srv.Start()

	if tg != nil {
		go tg.StartPolling(ctx, telegramPollTimeout, svc.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if cfg.RunOnStart {
		log.Info().Msg("run_on_start enabled, generating digest now")
		go func() {
			if _, err := svc.RunNow(ctx); err != nil {
				log.Error().Err(err).Msg("startup run failed")
			}
		}()
	}

	log.Info().Str("schedule", svc.Spec()).Time("next_run", svc.NextRun()).Msg("ForecastMailer is running")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, stopping")
	if err := srv.Stop(context.Background()); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}
