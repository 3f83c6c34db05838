package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLyricsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lyrics",
		Short: "Control the lyrics domain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show rate-limit and retry state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.apiBase()
			if err != nil {
				return err
			}
			var stats struct {
				Paused         bool       `json:"paused"`
				RecentRequests int        `json:"recent_requests"`
				RateLimit      int        `json:"rate_limit"`
				CooldownUntil  *time.Time `json:"cooldown_until"`
				Exhausted      int        `json:"exhausted_targets"`
				Failed         int        `json:"failed_targets"`
			}
			if err := newAPIClient(base).get("/api/lyrics/stats", &stats); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Requests (last 60s): %d/%d\n", stats.RecentRequests, stats.RateLimit)
			fmt.Fprintf(out, "Paused: %v\n", stats.Paused)
			if stats.CooldownUntil != nil {
				fmt.Fprintf(out, "Cooldown until: %s\n", stats.CooldownUntil.Local().Format(time.RFC1123))
			}
			fmt.Fprintf(out, "Targets with failures: %d (exhausted: %d)\n", stats.Failed, stats.Exhausted)
			return nil
		},
	})

	cmd.AddCommand(newLyricsToggleCommand(ctx, "pause", "Pause lyrics processing"))
	cmd.AddCommand(newLyricsToggleCommand(ctx, "resume", "Resume lyrics processing"))

	cmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Enqueue library tracks that are missing lyrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.apiBase()
			if err != nil {
				return err
			}
			var payload struct {
				Enqueued int `json:"enqueued"`
			}
			if err := newAPIClient(base).post("/api/lyrics/scan", nil, &payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d tracks\n", payload.Enqueued)
			return nil
		},
	})

	return cmd
}

func newLyricsToggleCommand(ctx *commandContext, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.apiBase()
			if err != nil {
				return err
			}
			if err := newAPIClient(base).post("/api/lyrics/"+verb, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lyrics processing %sd\n", verb)
			return nil
		},
	}
}
