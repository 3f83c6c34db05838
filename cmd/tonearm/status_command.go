package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type statusPayload struct {
	Queues        map[string]int `json:"queues"`
	SettlingInbox int            `json:"settling_inbox"`
	Lyrics        struct {
		Paused         bool       `json:"paused"`
		RecentRequests int        `json:"recent_requests"`
		RateLimit      int        `json:"rate_limit"`
		CooldownUntil  *time.Time `json:"cooldown_until"`
	} `json:"lyrics"`
	Events []eventPayload `json:"events"`
}

type eventPayload struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depths and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.apiBase()
			if err != nil {
				return err
			}
			var status statusPayload
			if err := newAPIClient(base).get("/api/status?limit=10", &status); err != nil {
				return err
			}

			names := make([]string, 0, len(status.Queues))
			for name := range status.Queues {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, strconv.Itoa(status.Queues[name])})
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"Queue", "Depth"}, rows,
					[]columnAlignment{alignLeft, alignRight}))

			if status.SettlingInbox > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Inbox settling: %d target(s)\n", status.SettlingInbox)
			}
			if status.Lyrics.Paused {
				fmt.Fprintln(cmd.OutOrStdout(), "Lyrics: paused")
			}
			if status.Lyrics.CooldownUntil != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Lyrics cooldown until %s\n",
					status.Lyrics.CooldownUntil.Local().Format(time.Kitchen))
			}

			if len(status.Events) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nRecent events:")
				printEvents(cmd, status.Events)
			}
			return nil
		},
	}
}

func printEvents(cmd *cobra.Command, events []eventPayload) {
	for _, event := range events {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-7s  %s\n",
			event.Timestamp.Local().Format("15:04:05"), event.Level, event.Message)
	}
}
