package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var scopes string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate an EVE character via SSO",
		Long: `Open the EVE SSO login page in a browser and store the resulting
tokens locally. The flow uses OAuth 2.0 with PKCE, so no client secret
is needed. Run it once per character; tokens refresh automatically on
later use.

Requires EVEGATE_CLIENT_ID to be set to an application registered at
https://developers.eveonline.com with a localhost callback URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			auth, err := newAuthenticator(cfg, logger)
			if err != nil {
				return err
			}
			if auth == nil {
				return fmt.Errorf("no client ID configured, set EVEGATE_CLIENT_ID")
			}

			token, err := auth.Login(cmd.Context(), parseCommaSeparatedList(scopes))
			if err != nil {
				return err
			}

			fmt.Printf("Logged in as %s (%d)\n", token.CharacterName, token.CharacterID)
			if len(token.Scopes) > 0 {
				fmt.Printf("Scopes: %s\n", strings.Join(token.Scopes, " "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopes, "scopes", "", "Comma-separated ESI scopes to request (default: EVEGATE_SCOPES)")

	return cmd
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
