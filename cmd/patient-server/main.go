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

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/patientcare/patient-service/internal/config"
	"github.com/patientcare/patient-service/internal/domain/patient"
	"github.com/patientcare/patient-service/internal/platform/auth"
	"github.com/patientcare/patient-service/internal/platform/billing"
	"github.com/patientcare/patient-service/internal/platform/db"
	"github.com/patientcare/patient-service/internal/platform/events"
	"github.com/patientcare/patient-service/internal/platform/middleware"
	"github.com/patientcare/patient-service/internal/platform/openapi"
	"github.com/patientcare/patient-service/internal/platform/telemetry"
	"github.com/patientcare/patient-service/internal/platform/validation"
)

const (
	version        = "0.1.0"
	requestTimeout = 30 * time.Second
	bodyLimit      = "1M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "patient-server",
		Short: "Patient lifecycle API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(billingCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// stores holds the record and user stores for the configured driver.
type stores struct {
	patients patient.PatientRepository
	users    auth.UserStore
	pinger   db.Pinger
	stats    telemetry.PoolStatsFunc
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		patients, err := patient.NewRepoSQLite(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		users, err := auth.NewUserStoreSQLite(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &stores{
			patients: patients,
			users:    users,
			pinger:   db.SQLPinger{DB: conn},
			stats: func() (int64, int64, int64) {
				s := conn.Stats()
				return int64(s.InUse), int64(s.Idle), int64(s.OpenConnections)
			},
			close: func() { conn.Close() },
		}, nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &stores{
			patients: patient.NewRepoPG(pool),
			users:    auth.NewUserStorePG(pool),
			pinger:   pool,
			stats: func() (int64, int64, int64) {
				s := pool.Stat()
				return int64(s.AcquiredConns()), int64(s.IdleConns()), int64(s.TotalConns())
			},
			close: pool.Close,
		}, nil
	}
}

// openPublisher is swapped out by tests that need to observe the transport.
var openPublisher = newPublisher

func newPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	switch cfg.Notifier {
	case config.NotifierAMQP:
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventTopic)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case config.NotifierRedis:
		pub, err := events.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case config.NotifierWebhook:
		pub, err := events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return events.NewLogPublisher(logger), nil
	}
}

// app is the assembled HTTP server and everything it must release on
// shutdown.
type app struct {
	echo       *echo.Echo
	dispatcher *events.Dispatcher
	billing    *billing.Client
	stores     *stores
	logger     zerolog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	tel := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "patient-service",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	reg := tel.Registry()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	tel.RegisterPoolStats(cfg.StoreDriver, st.stats)
	logger.Info().Str("driver", cfg.StoreDriver).Msg("connected to record store")

	billingClient, err := billing.NewClient(billing.ClientConfig{
		Addr:    cfg.BillingAddr,
		Timeout: cfg.BillingTimeout,
		TLS:     cfg.BillingTLS,
	}, logger)
	if err != nil {
		st.close()
		return nil, err
	}

	pub, err := openPublisher(ctx, cfg, logger)
	if err != nil {
		billingClient.Close()
		st.close()
		return nil, fmt.Errorf("connect %s notifier: %w", cfg.Notifier, err)
	}
	dispatcher := events.NewDispatcher(pub, events.DispatcherConfig{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	}, logger, reg)

	patientSvc := patient.NewService(
		st.patients,
		billingClient,
		patient.NewEventNotifier(dispatcher, cfg.EventTopic, logger),
		logger,
		patient.NewMetrics(reg),
	)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
	authSvc := auth.NewService(st.users, tokens, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	httpMetrics := middleware.NewHTTPMetrics(reg)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:     cfg.TLSEnabled,
		RouteCSP: map[string]string{"/docs": openapi.DocsCSP},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
		Skipper:           probeSkipper,
	}))

	// Auth middleware
	if cfg.AuthEnabled {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{Tokens: tokens, Skipper: auth.AuthSkipper}))
	} else {
		e.Use(auth.DevAuthMiddleware(tokens))
		logger.Warn().Msg("authentication disabled; requests run as the development user")
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.pinger, cfg.StoreDriver))
	e.GET("/metrics", tel.Handler())
	openapi.NewGenerator(version, "http://localhost:"+cfg.Port).RegisterRoutes(e)

	auth.NewHandler(authSvc).RegisterRoutes(e.Group("/auth"))
	patient.NewHandler(patientSvc).RegisterRoutes(e.Group(""), auth.RequireRole(auth.RoleUser))

	return &app{
		echo:       e,
		dispatcher: dispatcher,
		billing:    billingClient,
		stores:     st,
		logger:     logger,
	}, nil
}

// probeSkipper exempts liveness and scrape endpoints from rate limiting.
func probeSkipper(c echo.Context) bool {
	switch c.Path() {
	case "/health", "/health/db", "/metrics":
		return true
	}
	return false
}

// Close stops accepting requests, drains queued events and releases
// connections, in that order. The dispatcher owns the event publisher and
// closes it once drained.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	if err := a.billing.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close billing client: %w", err))
	}
	a.stores.close()
	return errors.Join(errs...)
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Env, cfg.LogLevel)

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Bool("auth", cfg.AuthEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = a.echo.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = a.echo.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
