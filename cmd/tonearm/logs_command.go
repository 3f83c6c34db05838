package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var sinceID uint64
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon's event log tail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.apiBase()
			if err != nil {
				return err
			}
			path := "/api/logs?limit=" + strconv.Itoa(limit) +
				"&since_id=" + strconv.FormatUint(sinceID, 10)
			var payload struct {
				Events []eventPayload `json:"events"`
			}
			if err := newAPIClient(base).get(path, &payload); err != nil {
				return err
			}
			if len(payload.Events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events")
				return nil
			}
			printEvents(cmd, payload.Events)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&sinceID, "since", 0, "Only show events newer than this id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	return cmd
}
