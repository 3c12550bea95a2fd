package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mfa-orphans/internal/config"
	"mfa-orphans/internal/security"
)

var (
	tokenAdmin string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Operator token tooling",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Sign an operator token with JWT_PRIVATE_KEY",
	Long: `Sign an operator bearer token for --admin. The key, issuer and audience come from
the same environment (or .env) the server reads: JWT_PRIVATE_KEY, JWT_ISSUER,
JWT_AUDIENCE and JWT_TTL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenAdmin == "" {
			return errors.New("--admin is required")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.JWTPrivateKey == "" {
			return errors.New("JWT_PRIVATE_KEY is not set")
		}
		priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return fmt.Errorf("JWT_PRIVATE_KEY: %w", err)
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.TokenTTL()
		}
		p := security.NewTokenProvider(priv, nil, cfg.JWTIssuer, cfg.JWTAudience, ttl)
		tok, exp, err := p.Issue(tokenAdmin)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, map[string]string{"token": tok, "expires_at": exp.Format(time.RFC3339)})
		}
		fmt.Println(tok)
		fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenMintCmd.Flags().StringVar(&tokenAdmin, "admin", "", "administrator uid the token is issued to")
	tokenMintCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	tokenCmd.AddCommand(tokenMintCmd)
	rootCmd.AddCommand(tokenCmd)
}
