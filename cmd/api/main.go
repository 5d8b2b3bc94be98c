package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"isp-contracts/internal/adapters/auth/jwt"
	pg "isp-contracts/internal/adapters/storage/postgres"
	"isp-contracts/internal/platform/config"
	"isp-contracts/internal/platform/logger"
	"isp-contracts/internal/router"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// @title ISP Contracts API
// @version 1.0
// @description Ciclo de vida de contratos y firma digital.
// @BasePath /
func main() {
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:   "isp-contracts",
		Short: "Contract lifecycle and digital signature service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "optional YAML config file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		tokenCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.Log.Format),
		App:    cfg.Log.App,
	})
	return cfg, log, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts, cleanup, err := router.FromConfig(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			if opts.DB != nil {
				if err := pg.Migrate(ctx, opts.DB); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			srv := &http.Server{
				Addr:         cfg.Addr(),
				Handler:      router.NewRouter(opts),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("starting server", map[string]any{"addr": srv.Addr})
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				log.Info("shutting down", nil)
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("DB_DSN is required")
			}

			db, err := pg.Open(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pg.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("schema applied", nil)
			return nil
		},
	}
}

// tokenCmd emite un JWT de desarrollo firmado con JWT_SECRET.
func tokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development JWT for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}

			now := time.Now()
			tok, err := jwt.Sign(cfg.Auth.JWTSecret, jwt.Claims{
				UserID: userID,
				RegisteredClaims: jwtlib.RegisteredClaims{
					Issuer:    cfg.Auth.Issuer,
					Subject:   userID,
					IssuedAt:  jwtlib.NewNumericDate(now),
					ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "agent-dev", "agent id (user_id claim)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
