package main

import (
	"os"

	"github.com/spf13/cobra"

	"ForecastMailer/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "forecastmailer",
		Short:         "Daily AI market forecast digest by email",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH or "+config.DefaultPath+")")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newRunCmd(opts))
	return root
}

// resolvePath applies --config > CONFIG_PATH > default.
func (o *rootOptions) resolvePath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return config.DefaultPath
}
