package command

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/client"
	"github.com/spf13/cobra"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the token was rejected. Check --token or $CHATCTL_TOKEN")
	}
	return err
}
