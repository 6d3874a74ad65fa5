// Command digestctl is the operator CLI for the digest engine.
//
// Usage:
//
//	digestctl migrate
//	digestctl run --verbose
//	digestctl tier set 5b0c7c39-5d7e-4d2c-9d0b-2f8f5d1a3e11 weekly
//	digestctl token --subject ops --role admin --ttl 1h
//	digestctl watch
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/notify-digest/internal/app"
	"github.com/jwalitptl/notify-digest/internal/archive"
	"github.com/jwalitptl/notify-digest/internal/config"
	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/repository/postgres"
	"github.com/jwalitptl/notify-digest/pkg/auth"
	"github.com/jwalitptl/notify-digest/pkg/messaging"
)

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:          "digestctl",
		Short:        "Operate the notification digest engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; an explicit --env-file must exist.
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading config")

	root.AddCommand(migrateCmd())
	root.AddCommand(runCmd())
	root.AddCommand(tierCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(watchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, builds the app and cancels on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(ctx, cfg, app.NewLogger(cfg.Log))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the digest tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if err := postgres.Migrate(ctx, a.DB); err != nil {
					return err
				}
				a.Logger.Info("Schema is up to date")
				return nil
			})
		},
	}
}

func runCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one digest cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				report, err := a.DigestWorker.RunOnce(ctx)
				if err != nil {
					return err
				}
				out := map[string]interface{}{
					"id":            report.ID,
					"duration":      report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
					"announcements": report.Announcements,
					"tiers":         report.TierSizes,
					"pending":       report.Pending,
					"outcomes":      report.Summary(),
					"interrupted":   report.Interrupted,
				}
				if verbose {
					out["results"] = report.Results
				}
				if err := printJSON(out); err != nil {
					return err
				}
				if n := report.Count(digest.OutcomeFailed); n > 0 {
					return fmt.Errorf("%d digests failed", n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print per-user results")
	return cmd
}

func tierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Inspect or change a user's digest frequency",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's digest settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				s, err := a.Settings.Get(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <user-id> <immediate|daily|weekly|disabled>",
		Short: "Change a user's digest frequency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				s, err := a.Settings.SetTier(ctx, id, args[1])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.JWT.Secret == "" {
				return errors.New("JWT_SECRET is required")
			}
			token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer).GenerateToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject: a user id, or an operator name for admin tokens")
	cmd.Flags().StringVar(&role, "role", "", "Set to \"admin\" for operator tokens")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream sent-digest events published by the workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if a.Broker == nil {
					return errors.New("REDIS_URL is required to watch digest events")
				}
				msgs, err := a.Broker.Subscribe(ctx, archive.SentTopic)
				if err != nil {
					return err
				}
				a.Logger.Info("Watching sent digests", "channel", archive.SentTopic)
				for raw := range msgs {
					var msg messaging.Message
					if err := json.Unmarshal(raw, &msg); err != nil {
						a.Logger.Warn("Skipping malformed event", "error", err.Error())
						continue
					}
					if msg.Type != archive.SentTopic {
						continue
					}
					fmt.Println(string(raw))
				}
				return nil
			})
		},
	}
}
