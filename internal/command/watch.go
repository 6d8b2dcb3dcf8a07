package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/client"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [topic...]",
		Short: "Subscribe to topics and print events as they are reconciled",
		Long:  "Subscribe to topics (default: your inbox and presence) and print each event with the cache's verdict. Falls back to polling while the WebSocket is unavailable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			topics := args
			if len(topics) == 0 {
				topics = []string{events.InboxTopic(ctx.UserID), events.PresenceTopic(ctx.UserID)}
			}
			showState, _ := cmd.Flags().GetBool("state")
			heartbeat, _ := cmd.Flags().GetDuration("heartbeat")
			verbose, _ := cmd.Flags().GetBool("verbose")

			log := zap.NewNop()
			if verbose {
				if log, err = zap.NewDevelopment(); err != nil {
					return writeCommandError(cmd, err)
				}
			}

			cache := client.NewCache(ctx.UserID, ctx.API)
			out := cmd.OutOrStdout()
			session := client.NewSession(client.SessionConfig{
				URL:               ctx.Server,
				Token:             ctx.Token,
				Topics:            topics,
				HeartbeatInterval: heartbeat,
				Logger:            log,
				OnEvent: func(ev events.Event, outcome client.Outcome) {
					if ctx.JSON {
						_ = json.NewEncoder(out).Encode(map[string]interface{}{"event": ev, "outcome": outcome.String()})
					} else {
						fmt.Fprintf(out, "%s %-40s #%-5d %-22s %s\n", ev.At.Format(time.TimeOnly), ev.Topic, ev.Seq, ev.Kind, outcome)
					}
					if showState {
						state, _ := json.MarshalIndent(cache, "", "  ")
						fmt.Fprintln(out, string(state))
					}
				},
			}, cache)

			fmt.Fprintf(cmd.ErrOrStderr(), "watching %d topic(s) as %s\n", len(topics), ctx.UserID)
			if err := session.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("state", false, "print the reconciled state after every event")
	cmd.Flags().Duration("heartbeat", time.Minute, "presence heartbeat interval (0 disables)")
	cmd.Flags().BoolP("verbose", "v", false, "log connection activity")
	return cmd
}
