package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResyncCmd creates the resync command.
func NewResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <topic>",
		Short: "Fetch the canonical state of a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			snap, err := ctx.API.Resync(cmd.Context(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return ctx.Print(snap, fmt.Sprintf("%s @%d\n%s", snap.Topic, snap.Seq, snap.State))
		},
	}
}
