package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <import|regen|cover|lyrics> [target]",
		Short: "Manually enqueue a domain action",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			path := "/api/trigger/" + url.PathEscape(domain)
			switch domain {
			case "import", "regen":
			case "cover", "lyrics":
				if len(args) < 2 {
					return errors.New(domain + " requires a target path")
				}
				path += "?target=" + url.QueryEscape(args[1])
			default:
				return errors.New("unknown domain " + domain)
			}

			base, err := ctx.apiBase()
			if err != nil {
				return err
			}
			var payload struct {
				Accepted bool `json:"accepted"`
			}
			if err := newAPIClient(base).post(path, nil, &payload); err != nil {
				return err
			}
			if payload.Accepted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s enqueued\n", domain)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already pending\n", domain)
			}
			return nil
		},
	}
}
