package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/activity"
	"github.com/clinicdesk/clinicdesk/internal/domain/catalog"
	"github.com/clinicdesk/clinicdesk/internal/domain/ledger"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/events"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/reporting"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicdesk-server",
		Short: "Appointment and payment ledger API for independent practices",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openPool loads the configuration and connects to PostgreSQL. Callers own
// the returned pool.
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := db.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer migrator.Close()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := db.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer migrator.Close()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd, statuses)
			return nil
		},
	})

	// migrate version
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := db.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer migrator.Close()

			v, err := migrator.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
			return nil
		},
	})

	return cmd
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger maintenance",
	}

	recomputeCmd := &cobra.Command{
		Use:   "recompute",
		Short: "Re-derive an appointment's balance from its payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			professionalID, appointmentID, err := recomputeTarget(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			wired, err := newApp(pool, cfg, nil, newLogger(cfg))
			if err != nil {
				return err
			}
			a, err := wired.ledger.RecomputeBalance(ctx, professionalID, appointmentID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		},
	}
	recomputeCmd.Flags().String("professional", "", "Owning professional id")
	recomputeCmd.Flags().String("appointment", "", "Appointment id")
	cmd.AddCommand(recomputeCmd)

	return cmd
}

func recomputeTarget(cmd *cobra.Command) (uuid.UUID, uuid.UUID, error) {
	rawProf, _ := cmd.Flags().GetString("professional")
	rawAppt, _ := cmd.Flags().GetString("appointment")
	if rawProf == "" || rawAppt == "" {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--professional and --appointment are required")
	}
	professionalID, err := uuid.Parse(rawProf)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --professional: %w", err)
	}
	appointmentID, err := uuid.Parse(rawAppt)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --appointment: %w", err)
	}
	return professionalID, appointmentID, nil
}

// app holds the wired domain services.
type app struct {
	activity *activity.Service
	catalog  *catalog.Service
	patients *patient.Service
	ledger   *ledger.Service
	reports  *reporting.Handler
}

// newApp builds every domain service on top of pool. A nil recorder falls
// back to the activity_log table alone.
func newApp(pool *pgxpool.Pool, cfg *config.Config, recorder activity.Recorder, logger zerolog.Logger) (*app, error) {
	policy, err := ledger.ParsePaymentPolicy(cfg.PaymentPolicy)
	if err != nil {
		return nil, err
	}

	activityRepo := activity.NewRepoPG(pool)
	if recorder == nil {
		recorder = activityRepo
	}

	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool))

	patientSvc := patient.NewService(patient.NewRepoPG(pool), logger)
	patientSvc.SetActivityRecorder(recorder)

	ledgerSvc := ledger.NewService(
		ledger.NewAppointmentRepoPG(pool),
		ledger.NewPaymentRepoPG(pool),
		catalogLookup{items: catalogSvc},
		patientLookup{patients: patientSvc},
		logger,
	)
	ledgerSvc.SetActivityRecorder(recorder)
	ledgerSvc.SetPaymentPolicy(policy)
	ledgerSvc.SetNotifier(notification.NewMessenger(
		notification.NewTemplateEngine(),
		notification.LinkBuilder{CountryCode: cfg.DefaultCountryCode},
	))

	return &app{
		activity: activity.NewService(activityRepo),
		catalog:  catalogSvc,
		patients: patientSvc,
		ledger:   ledgerSvc,
		reports:  reporting.NewHandler(pool),
	}, nil
}

func (a *app) registerRoutes(api *echo.Group) {
	activity.NewHandler(a.activity).RegisterRoutes(api)
	catalog.NewHandler(a.catalog).RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	ledger.NewHandler(a.ledger).RegisterRoutes(api)
	a.reports.RegisterRoutes(api)
}

// authMiddleware verifies identity-provider tokens. In development requests
// without a token act as the configured dev professional.
func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}

	if !cfg.IsDev() {
		return auth.JWTMiddleware(jwtCfg), nil
	}

	devProfessional, err := uuid.Parse(cfg.DevProfessionalID)
	if err != nil {
		return nil, fmt.Errorf("invalid DEV_PROFESSIONAL_ID: %w", err)
	}
	var verify echo.MiddlewareFunc
	if cfg.AuthIssuer != "" || cfg.AuthSigningKey != "" {
		verify = auth.JWTMiddleware(jwtCfg)
	}
	return auth.DevAuthMiddleware(devProfessional, verify), nil
}

// rateLimiter returns the shared Redis limiter when REDIS_URL is set and the
// in-process token bucket otherwise. The returned close func is never nil.
func rateLimiter(cfg *config.Config, logger zerolog.Logger) (echo.MiddlewareFunc, func() error, error) {
	if cfg.RedisURL == "" {
		rl := middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}
		if rl.RequestsPerSecond <= 0 {
			rl = middleware.DefaultRateLimitConfig()
		}
		return middleware.RateLimit(rl), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	perMinute := int(cfg.RateLimitRPS * 60)
	limiter := middleware.NewRedisRateLimiter(rdb, perMinute, time.Minute, "clinicdesk:rl")
	return limiter.Middleware(logger, true), rdb.Close, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return err
	}

	// Logger
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Activity fan-out
	var recorder activity.Recorder
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		pub, err := events.NewPublisher(events.PublisherConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaActivityTopic,
			Async:   true,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create event publisher")
		}
		defer pub.Close()
		recorder = activity.Multi{activity.NewRepoPG(pool), activity.NewEventRecorder(pub)}
		logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaActivityTopic).Msg("publishing activity to kafka")
	}

	wired, err := newApp(pool, cfg, recorder, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevProfessionalHeader},
	}))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		HSTS:       !cfg.IsDev(),
		CacheRules: middleware.DefaultCacheRules(),
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	authMW, err := authMiddleware(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure auth")
	}
	e.Use(authMW)

	// Audit middleware
	e.Use(middleware.Audit(logger, nil))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API
	apiV1 := e.Group("/api/v1")
	limitMW, closeLimiter, err := rateLimiter(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure rate limiting")
	}
	defer closeLimiter()
	apiV1.Use(limitMW)
	wired.registerRoutes(apiV1)

	logger.Info().
		Str("payment_policy", string(wired.ledger.Policy())).
		Msg("ledger configured")

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
