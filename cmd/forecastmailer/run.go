package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"ForecastMailer/internal/logger"
	"ForecastMailer/internal/scheduler"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate one digest now and deliver it",
		Long:  "Generate one digest now and deliver it. With --dry-run the digest is printed as JSON and nothing is sent or recorded.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				return runDry(cmd.Context(), opts.resolvePath(), cmd.OutOrStdout())
			}
			return runOnce(cmd.Context(), opts.resolvePath())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of delivering it")
	return cmd
}

func runDry(ctx context.Context, path string, out io.Writer) error {
	a, err := newApp(path, false)
	if err != nil {
		return err
	}
	defer a.Close()

	digest, err := a.pipeline.Run(ctx, a.cfg.Tickers)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(digest)
}

func runOnce(ctx context.Context, path string) error {
	a, err := newApp(path, true)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Schedule.Location()
	if err != nil {
		return err
	}
	multi, _ := a.notifiers()
	svc := scheduler.NewService(ctx, loc, a.pipeline, a.cfg.Tickers, multi, a.recorder(),
		a.cfg.Server.RunTimeout, logger.Component(a.log, "scheduler"))

	digest, err := svc.RunNow(ctx)
	if err != nil {
		return err
	}
	a.log.Info().Str("run_id", digest.RunID).Int("results", len(digest.Results)).Msg("digest delivered")
	return nil
}
