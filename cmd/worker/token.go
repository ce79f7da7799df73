package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"djeworker/internal/api"
)

func tokenCMD(flags *rootFlags) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with api.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}

			if cfg.API.JWTSecret == "" {
				return api.ErrMissingSecret
			}

			token, err := api.SignToken(subject, []byte(cfg.API.JWTSecret), ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)

			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "Sistema", "token subject, recorded on API changes")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
