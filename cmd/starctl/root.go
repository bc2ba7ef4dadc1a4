package main

import (
	"time"

	"github.com/okian/starboard/internal/clickstorm"
	"github.com/okian/starboard/pkg/logger"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	url      string
	timeout  time.Duration
	retries  int
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "starctl",
		Short: "Operate a running starboard engine",
		Long: `starctl talks to the starboard HTTP API. It can hammer one cell with
concurrent star changes and verify nothing was lost, list the effects in
force, sweep expired effects and recompute ranking points.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logger.SetLevelString(g.logLevel)
		},
	}
	root.PersistentFlags().StringVar(&g.url, "url", "http://localhost:9080", "Base URL of the engine")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "Per-attempt HTTP timeout")
	root.PersistentFlags().IntVar(&g.retries, "retries", 4, "Retries for transient failures")
	root.PersistentFlags().StringVarP(&g.logLevel, "loglevel", "l", "info", "Log level: debug, info, warn, error")

	root.AddCommand(
		newStormCmd(g),
		newEffectsCmd(g),
		newSweepCmd(g),
		newRecomputeCmd(g),
	)
	return root
}

func (g *globalFlags) client() *clickstorm.Client {
	return clickstorm.NewClient(g.url,
		clickstorm.WithTimeout(g.timeout),
		clickstorm.WithRetryMax(g.retries),
		clickstorm.WithLogger(logger.Named("starctl")),
	)
}
