package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strefethen/harmony-go/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var client string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the /v1 API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
				return errors.New("JWT_SECRET must be at least 32 characters")
			}

			signer := auth.NewSigner(cfg.JWTSecret, time.Duration(cfg.JWTAccessTokenExpirySec)*time.Second)
			token, err := signer.GenerateToken(auth.TokenPayload{Sub: uuid.NewString(), Client: client})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "cli", "name recorded in the token")
	return cmd
}
