package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/evegate/internal/sso"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage stored EVE characters",
		Long: `List, inspect and remove the characters whose tokens are stored
locally. Without a subcommand the stored characters are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountsList()
		},
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsInspectCmd())
	cmd.AddCommand(newAccountsRemoveCmd())

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountsList()
		},
	}
}

func runAccountsList() error {
	auth, err := requireAuthenticator()
	if err != nil {
		return err
	}

	accounts := auth.Accounts()
	if len(accounts) == 0 {
		fmt.Println("No characters stored. Run 'evegate login' first.")
		return nil
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CharacterName < accounts[j].CharacterName
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "CHARACTER ID\tNAME\tTOKEN EXPIRES\tSCOPES")
	for _, t := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n",
			t.CharacterID, t.CharacterName, formatExpiry(t.ExpiresAt), len(t.Scopes))
	}
	return w.Flush()
}

func newAccountsInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <character>",
		Short: "Show the decoded token claims for a stored character",
		Long: `Decode the stored access token of a character and print its claims:
identity, owner hash, scopes and expiry. The signature is not verified;
the output is informational. The character may be given as an ID or a
name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := requireAuthenticator()
			if err != nil {
				return err
			}

			token, err := findAccount(auth, args[0])
			if err != nil {
				return err
			}

			claims, err := sso.InspectToken(token.AccessToken)
			if err != nil {
				return fmt.Errorf("decode token for %s: %w", token.CharacterName, err)
			}

			out := struct {
				CharacterID   int64     `json:"character_id"`
				CharacterName string    `json:"character_name"`
				Owner         string    `json:"owner,omitempty"`
				Issuer        string    `json:"issuer,omitempty"`
				Scopes        []string  `json:"scopes,omitempty"`
				ExpiresAt     time.Time `json:"expires_at"`
			}{
				CharacterID:   claims.CharacterID,
				CharacterName: claims.CharacterName,
				Owner:         claims.Owner,
				Issuer:        claims.Issuer,
				Scopes:        claims.Scopes,
				ExpiresAt:     claims.ExpiresAt,
			}
			return printJSON(os.Stdout, out)
		},
	}
}

func newAccountsRemoveCmd() *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "remove <character>",
		Short: "Remove a stored character",
		Long: `Delete a character's tokens from the local store. With --revoke the
refresh token is also revoked at the SSO server, invalidating it
everywhere; the local copy is removed either way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := requireAuthenticator()
			if err != nil {
				return err
			}

			token, err := findAccount(auth, args[0])
			if err != nil {
				return err
			}

			if revoke {
				if err := auth.RevokeToken(cmd.Context(), token.CharacterID); err != nil {
					return err
				}
				fmt.Printf("Revoked and removed %s (%d)\n", token.CharacterName, token.CharacterID)
				return nil
			}

			removed, err := auth.RemoveToken(token.CharacterID)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no stored character with ID %d", token.CharacterID)
			}
			fmt.Printf("Removed %s (%d)\n", token.CharacterName, token.CharacterID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "Also revoke the refresh token at the SSO server")
	return cmd
}

// requireAuthenticator wires SSO from config and fails when no client ID
// is configured.
func requireAuthenticator() (*sso.Authenticator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	auth, err := newAuthenticator(cfg, logger)
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, fmt.Errorf("no client ID configured, set EVEGATE_CLIENT_ID")
	}
	return auth, nil
}

// findAccount resolves a character argument, decimal ID or exact name.
func findAccount(auth *sso.Authenticator, arg string) (*sso.Token, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		for _, t := range auth.Accounts() {
			if t.CharacterID == id {
				return t, nil
			}
		}
		return nil, fmt.Errorf("no stored character with ID %d", id)
	}
	for _, t := range auth.Accounts() {
		if strings.EqualFold(t.CharacterName, arg) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no stored character named %q", arg)
}

func formatExpiry(t time.Time) string {
	if !time.Now().Before(t) {
		return "expired (refreshes on next use)"
	}
	return "in " + time.Until(t).Round(time.Second).String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
