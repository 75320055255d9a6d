package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/autoshine/autoshine/internal/config"
	"github.com/autoshine/autoshine/internal/domain/scheduling"
	"github.com/autoshine/autoshine/internal/platform/auth"
	"github.com/autoshine/autoshine/internal/platform/cache"
	"github.com/autoshine/autoshine/internal/platform/db"
	"github.com/autoshine/autoshine/internal/platform/middleware"
	"github.com/autoshine/autoshine/migrations"
)

const (
	requestTimeout = 30 * time.Second
	bodyLimit      = "1M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autoshine-server",
		Short: "Auto detailing scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(rulesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// migrationSource prefers an on-disk directory when one is given so
// operators can test new files without rebuilding.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func tenantOrDefault(cmd *cobra.Command, cfg *config.Config) (string, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	if !db.ValidTenantID(tenant) {
		return "", fmt.Errorf("invalid tenant identifier: %q", tenant)
	}
	return tenant, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a shop schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenant, err := tenantOrDefault(cmd, cfg)
			if err != nil {
				return err
			}
			schema := db.SchemaName(tenant)

			migrator := db.NewMigrator(pool, migrationSource(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Shop identifier (defaults to DEFAULT_TENANT)")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenant, err := tenantOrDefault(cmd, cfg)
			if err != nil {
				return err
			}
			schema := db.SchemaName(tenant)

			migrator := db.NewMigrator(pool, migrationSource(dir))
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Shop identifier (defaults to DEFAULT_TENANT)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore the shop schema from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage shops",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a shop schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating shop schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, db.NewMigrator(pool, migrations.FS)); err != nil {
				return err
			}
			fmt.Println("Shop created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Shop identifier (alphanumeric and underscore)")

	cmd.AddCommand(createCmd)
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage configuration rules",
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load configuration rules from a YAML file into a shop",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			rules, err := scheduling.LoadRules(f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenant, err := tenantOrDefault(cmd, cfg)
			if err != nil {
				return err
			}
			ctx, release, err := db.WithTenant(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			svc := scheduling.NewService(scheduling.NewRuleRepoPG(pool), scheduling.NewAppointmentRepoPG(pool))
			if err := svc.SeedRules(ctx, rules); err != nil {
				return err
			}
			fmt.Printf("Seeded %d rule(s) into %s.\n", len(rules), db.SchemaName(tenant))
			return nil
		},
	}
	seedCmd.Flags().String("file", "", "Path to the YAML rule file")
	seedCmd.Flags().String("tenant", "", "Shop identifier (defaults to DEFAULT_TENANT)")

	cmd.AddCommand(seedCmd)
	return cmd
}

// newRuleStore picks the cache backing the rule snapshots: Redis when
// REDIS_URL is set so every replica sees the same invalidations, an
// in-process LRU otherwise.
func newRuleStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Int("size", cfg.RulesCacheSize).Dur("ttl", cfg.RulesCacheTTL).Msg("using in-process rules cache")
		return cache.NewLRUStore(cfg.RulesCacheSize, cfg.RulesCacheTTL), func() {}, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.RedisURL, "autoshine:", cfg.RulesCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Dur("ttl", cfg.RulesCacheTTL).Msg("using redis rules cache")
	return store, func() { _ = store.Close() }, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	ruleStore, closeStore, err := newRuleStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeStore()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))

	// Auth middleware
	external := cfg.ResolvedAuthMode() != "development"
	if external {
		jwtAuth, err := auth.JWTMiddleware(ctx, auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to set up token verification")
		}
		e.Use(jwtAuth)
	} else {
		logger.Warn().Msg("development auth active: requests without a token run as admin")
		e.Use(auth.DevAuthMiddleware(cfg.DefaultTenant))
	}

	// Health checks stay outside tenant resolution.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API group
	apiV1 := e.Group("/api/v1")

	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))
	apiV1.Use(db.TenantMiddleware(pool, db.TenantConfig{
		Default:   cfg.DefaultTenant,
		ClaimOnly: external,
	}))

	// Scheduling domain
	ruleRepo := scheduling.NewCachedRuleRepository(scheduling.NewRuleRepoPG(pool), ruleStore, logger)
	schedSvc := scheduling.NewService(ruleRepo, scheduling.NewAppointmentRepoPG(pool),
		scheduling.WithLocation(loc),
		scheduling.WithMaxOccurrences(cfg.MaxRecurrenceOccurrences),
		scheduling.WithLogger(logger.With().Str("component", "scheduling").Logger()),
	)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
