package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/client"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// CommandContext carries what every subcommand needs.
type CommandContext struct {
	Server  string
	Token   string
	UserID  uuid.UUID
	JSON    bool
	API     *client.API
	command *cobra.Command
}

func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	asJSON, _ := cmd.Flags().GetBool("json")
	if token == "" {
		return nil, errors.New("a token is required (--token or $CHATCTL_TOKEN)")
	}

	user, err := tokenSubject(token)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Server:  server,
		Token:   token,
		UserID:  user,
		JSON:    asJSON,
		API:     client.NewAPI(server, token),
		command: cmd,
	}, nil
}

// tokenSubject reads the identity from the token without verifying it; the
// server does the verification.
func tokenSubject(token string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	for _, key := range []string{"sub", "user_id"} {
		if s, ok := claims[key].(string); ok && s != "" {
			return uuid.Parse(s)
		}
	}
	return uuid.Nil, errors.New("token has no sub or user_id claim")
}

// Print writes v as JSON with --json, otherwise with text.
func (c *CommandContext) Print(v interface{}, text string) error {
	out := c.command.OutOrStdout()
	if c.JSON {
		return json.NewEncoder(out).Encode(v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
