package main

import (
	"fmt"
	"runtime"

	"github.com/okian/starboard/internal/clickstorm"
	"github.com/spf13/cobra"
)

func newStormCmd(g *globalFlags) *cobra.Command {
	cfg := clickstorm.Config{}
	cmd := &cobra.Command{
		Use:   "storm",
		Short: "Fire concurrent star changes at one cell and verify the total",
		Example: `  starctl storm --team red --location harbor --count 1000
  starctl storm --team red --location harbor --count 500 --rate 200 --workers 16`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := g.client()
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("engine not healthy: %w", err)
			}
			rep, err := clickstorm.Storm(cmd.Context(), c, cfg)
			out := cmd.OutOrStdout()
			if rep.Sent > 0 || rep.Failed > 0 {
				fmt.Fprintf(out, "sent=%d failed=%d stars=%g->%g realized=%g logs_added=%d duration=%s rate=%.1f/s\n",
					rep.Sent, rep.Failed, rep.InitialStars, rep.FinalStars, rep.RealizedSum,
					rep.LogsAdded, rep.Duration, rep.ClicksPerSec)
				for _, f := range rep.FirstFailures {
					fmt.Fprintf(out, "  failure: %s\n", f)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "consistent")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.TeamID, "team", "", "Team id of the cell")
	cmd.Flags().StringVar(&cfg.LocationID, "location", "", "Location id of the cell")
	cmd.Flags().IntVar(&cfg.Count, "count", 100, "Number of clicks")
	cmd.Flags().Float64Var(&cfg.Delta, "delta", 1, "Requested change per click")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "Concurrent requests")
	cmd.Flags().Float64Var(&cfg.Rate, "rate", 0, "Clicks per second, 0 for unlimited")
	cmd.Flags().StringVar(&cfg.ActorID, "actor", "starctl", "Actor recorded in the change log")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}
