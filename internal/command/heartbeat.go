package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHeartbeatCmd creates the heartbeat command.
func NewHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Record a presence heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			liveness, err := ctx.API.Heartbeat(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return ctx.Print(map[string]string{"liveness": liveness}, fmt.Sprintf("%s is %s", ctx.UserID, liveness))
		},
	}
}
