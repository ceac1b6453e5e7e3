package root

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"bossweek/internal/cli"
	"bossweek/internal/config"
	"bossweek/internal/sheets/google"
)

func newSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Google Sheets report export helpers",
	}
	cmd.AddCommand(newSheetsAuthCmd())
	return cmd
}

func newSheetsAuthCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize the OAuth client and save a refresh token",
		Long: "Runs the OAuth consent flow for GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE. " +
			"The client must list http://localhost:<OAUTH_REDIRECT_PORT>/callback as a redirect URI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The token does not exist yet, so the full validation would fail.
			cli.LoadEnvFile()
			cfg := config.Load()

			clientJSON := []byte(cfg.GoogleOAuthClientJSON)
			if len(clientJSON) == 0 {
				if cfg.GoogleOAuthClientFile == "" {
					return errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
				}
				b, err := os.ReadFile(cfg.GoogleOAuthClientFile)
				if err != nil {
					return fmt.Errorf("read client file: %w", err)
				}
				clientJSON = b
			}

			if out == "" {
				out = cfg.GoogleOAuthTokenFile
			}
			if out == "" {
				out = "token.json"
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			tok, err := google.Authorize(ctx, clientJSON, strconv.Itoa(cfg.OAuthRedirectPort), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := google.SaveToken(out, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s. Set GOOGLE_OAUTH_TOKEN_FILE=%s\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Token file (default: GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	return cmd
}
