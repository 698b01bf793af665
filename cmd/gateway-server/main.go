package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/interop/gateway/internal/config"
	"github.com/interop/gateway/internal/pipeline"
	"github.com/interop/gateway/internal/platform/audit"
	"github.com/interop/gateway/internal/platform/auth"
	"github.com/interop/gateway/internal/platform/consent"
	"github.com/interop/gateway/internal/platform/db"
	"github.com/interop/gateway/internal/platform/fhir"
	"github.com/interop/gateway/internal/platform/filter"
	"github.com/interop/gateway/internal/platform/mapping"
	"github.com/interop/gateway/internal/platform/middleware"
	"github.com/interop/gateway/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway-server",
		Short: "HL7v2 to FHIR interoperability gateway",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with mapping rule sets",
	}

	checkCmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a mapping rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := mapping.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Rule set %q is valid: %d rule(s).\n", rs.Version, len(rs.Rules))
			return nil
		},
	}
	cmd.AddCommand(checkCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			org, _ := cmd.Flags().GetString("org")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is required to sign tokens")
			}
			token, err := auth.IssueToken(cfg.AuthSecret, subject, org, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "dev", "Token subject")
	cmd.Flags().String("org", "dev-org", "Organization the token acts for")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

// refreshRules re-reads the rule file on an interval and publishes new
// versions atomically. A broken file keeps the current snapshot.
func refreshRules(ctx context.Context, store *mapping.Store, path string, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rs, err := mapping.LoadFile(path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("rule refresh failed, keeping current rules")
			continue
		}
		if rs.Version == store.Current().Version {
			continue
		}
		if err := store.Swap(rs); err != nil {
			logger.Error().Err(err).Msg("rule swap rejected")
			continue
		}
		logger.Info().Str("version", rs.Version).Msg("mapping rules refreshed")
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	// Stores: PostgreSQL when configured, in-memory otherwise.
	var (
		grantStore consent.Store
		sink       audit.Sink
		dbHealth   echo.HandlerFunc
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		grantStore = consent.NewPGStore(pool)
		sink = audit.NewPGSink(pool)
		dbHealth = db.HealthHandler(pool)
		logger.Info().Msg("connected to database")
	} else {
		grantStore = consent.NewMemoryStore()
		sink = audit.NewLogSink(logger)
		logger.Warn().Msg("DATABASE_URL not set; consent and audit use in-memory stores")
	}

	// Mapping rules: built-in defaults, optionally replaced from file.
	rules := mapping.DefaultRules()
	if cfg.MappingRulesPath != "" {
		rules, err = mapping.LoadFile(cfg.MappingRulesPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.MappingRulesPath).Msg("failed to load mapping rules")
		}
		logger.Info().Str("version", rules.Version).Msg("loaded mapping rules")
	}
	ruleStore, err := mapping.NewStore(rules)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid mapping rules")
	}
	if cfg.MappingRulesPath != "" && cfg.MappingRulesRefresh > 0 {
		refreshCtx, refreshCancel := context.WithCancel(ctx)
		defer refreshCancel()
		go refreshRules(refreshCtx, ruleStore, cfg.MappingRulesPath, cfg.MappingRulesRefresh, logger)
	}

	metrics := telemetry.NewMetrics()
	service := pipeline.NewService(pipeline.Options{
		Engine:         mapping.NewEngine(ruleStore),
		Gate:           consent.NewGate(grantStore),
		Sink:           sink,
		Validator:      fhir.NewProfileValidator(fhir.DefaultRegistry()),
		Table:          filter.DefaultTable(),
		Cache:          pipeline.NewCache(cfg.CacheTTL),
		ConsentTimeout: cfg.ConsentTimeout,
		AuditTimeout:   cfg.AuditTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(auth.Middleware(cfg.AuthSecret, cfg.ResolvedAuthMode() == "dev"))
	pipeline.NewHandler(service).Register(apiV1)

	// Start and wait for shutdown.
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("gateway listening")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
