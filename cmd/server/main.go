package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/majlischat/majlis-server/internal/app"
	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/config"
	"github.com/majlischat/majlis-server/internal/log"
	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store/sqlite"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "majlis-server",
		Short:         "Group chat server with a moderated speaking queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootstrap := log.New(logLevel)
			cfg, path, err := config.Load(bootstrap, configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting majlis server")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address override")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(adminCmd(&configPath, &logLevel))
	return cmd
}

// adminCmd manages admin accounts directly against the database, for
// bootstrapping the first owner before the server has ever run.
func adminCmd(configPath, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var (
		username string
		password string
		role     string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			logger := log.New(*logLevel)
			cfg, _, err := config.Load(logger, *configPath)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()

			// Token settings are irrelevant here; only account
			// creation runs.
			service := auth.NewService(st, &auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      24 * time.Hour,
			})

			ctx, cancel := context.WithTimeout(cobraCmd.Context(), 10*time.Second)
			defer cancel()

			acc, err := service.CreateAdmin(ctx, username, password, perm.Role(role))
			if err != nil {
				return err
			}
			logger.Info().Str("username", acc.Username).Str("role", string(acc.Role)).Msg("admin account created")
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "admin username")
	create.Flags().StringVar(&password, "password", "", "admin password")
	create.Flags().StringVar(&role, "role", string(perm.RoleOwner), "privilege tier (owner, superadmin, admin, mod)")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}
