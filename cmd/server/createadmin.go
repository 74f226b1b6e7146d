package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/auth"
)

func newCreateAdminCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "createadmin",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or ADMIN_PASSWORD is required")
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.migrate(cmd.Context()); err != nil {
				return err
			}

			tokens := auth.NewTokenIssuer(a.cfg.Auth.Secret, a.cfg.Auth.AccessTTL, a.cfg.Auth.RefreshTTL)
			user, err := auth.NewService(a.store, tokens, a.logger).CreateAdmin(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}

			a.logger.Info("admin created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %q (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Admin email")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (defaults to $ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
