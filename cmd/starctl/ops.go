package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEffectsCmd(g *globalFlags) *cobra.Command {
	var sessionID, teamID string
	cmd := &cobra.Command{
		Use:   "effects",
		Short: "List effects in force",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := g.client().ActiveEffects(cmd.Context(), sessionID, teamID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range list {
				fmt.Fprintf(out, "%s\t%s\tteam=%s\tlocation=%s\tvalue=%s\texpires=%s\n",
					e.Get("id").String(),
					e.Get("kind").String(),
					e.Get("team_id").String(),
					e.Get("location_id").String(),
					e.Get("value").Raw,
					e.Get("expires_at").String(),
				)
			}
			fmt.Fprintf(out, "%d effect(s)\n", len(list))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().StringVar(&teamID, "team", "", "Only effects involving this team")
	return cmd
}

func newSweepCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close every effect whose expiry has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := g.client().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %d effect(s)\n", n)
			return nil
		},
	}
}

func newRecomputeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <location-id>...",
		Short: "Recompute ranking points at locations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := g.client()
			for _, id := range args {
				if err := c.Recompute(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recomputed %s\n", id)
			}
			return nil
		},
	}
}
