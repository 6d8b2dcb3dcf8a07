// Package command implements chatctl, a terminal subscriber for the
// realtime API.
package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "chatctl"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "chatctl - subscribe to and poke the realtime chat API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("server", envOr("CHATCTL_SERVER", "http://localhost:8080"), "server base URL")
	cmd.PersistentFlags().String("token", os.Getenv("CHATCTL_TOKEN"), "bearer token (default $CHATCTL_TOKEN)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewWatchCmd(),
		NewHeartbeatCmd(),
		NewResyncCmd(),
		NewSendCmd(),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
