package command

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer> <message...>",
		Short: "Send a direct message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			peer, err := uuid.Parse(args[0])
			if err != nil {
				return writeCommandError(cmd, fmt.Errorf("invalid peer id: %w", err))
			}
			clientID, _ := cmd.Flags().GetString("client-id")

			msg, err := ctx.API.SendDirect(cmd.Context(), peer, strings.Join(args[1:], " "), clientID)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return ctx.Print(msg, fmt.Sprintf("sent #%d (seq %d)", msg.ID, msg.Seq))
		},
	}
	cmd.Flags().String("client-id", "", "idempotency key for retries")
	return cmd
}
