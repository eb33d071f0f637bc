package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/auth"
)

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the server's /v1 endpoints",
	}
	cmd.AddCommand(newKeysGenerateCmd(a))
	return cmd
}

func newKeysGenerateCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new API key",
		Long: `Generate a new svk_ API key. The key is printed once and never stored.

With --postgres-dsn (or POSTGRES_DSN) the bcrypt hash is saved to the
api_keys table for SV_AUTH=store. Otherwise the hash is printed so it can
be set as SV_API_KEY_HASH for SV_AUTH=static.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, hash, prefix, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if a.dsn == "" {
				if a.jsonOut {
					return printJSON(out, map[string]string{"api_key": key, "hash": hash})
				}
				fmt.Fprintf(out, "api key:          %s\n", key)
				fmt.Fprintf(out, "SV_API_KEY_HASH:  %s\n", hash)
				mutedColor.Fprintln(out, "Store the key now; it cannot be recovered.")
				return nil
			}

			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			rec := auth.KeyRecord{
				ID:        uuid.NewString(),
				Name:      name,
				Prefix:    prefix,
				Hash:      hash,
				CreatedAt: time.Now().UTC(),
			}
			if err := repo.CreateAPIKey(cmd.Context(), rec); err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(out, map[string]string{"api_key": key, "id": rec.ID, "name": name})
			}
			fmt.Fprintf(out, "api key: %s\n", key)
			fmt.Fprintf(out, "id:      %s\n", rec.ID)
			mutedColor.Fprintln(out, "Store the key now; it cannot be recovered.")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "default", "Label recorded with the key")
	return cmd
}
