/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vsmm-world/userapi/internal/audit"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/internal/handlers"
	"github.com/vsmm-world/userapi/internal/server"
	"github.com/vsmm-world/userapi/internal/services"
)

var adminInput handlers.RegisterRequest

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative account tasks",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator directly in the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		req := adminInput
		req.Role = ""
		req.Email = services.NormalizeEmail(req.Email)
		if err := handlers.Validate(req); err != nil {
			return err
		}

		ctx := cmd.Context()
		repo, closeStore, err := server.OpenStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore(ctx) }()

		authService := services.NewAuthService(
			repo,
			auth.NewPasswordHasher(cfg.Auth.BcryptCost),
			auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
			audit.NewSecurityLogger(log),
			log,
		)
		user, err := authService.CreateAdmin(ctx, req.Name, req.Email, req.Password)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVar(&adminInput.Name, "name", "", "display name")
	adminCreateCmd.Flags().StringVar(&adminInput.Email, "email", "", "email address")
	adminCreateCmd.Flags().StringVar(&adminInput.Password, "password", "", "initial password")
	_ = adminCreateCmd.MarkFlagRequired("name")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
}
