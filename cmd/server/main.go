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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pesio-ai/be-brgy-identity/internal/config"
	"github.com/pesio-ai/be-brgy-identity/internal/handler"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/notify"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	"github.com/pesio-ai/be-brgy-identity/internal/repository/memstore"
	"github.com/pesio-ai/be-brgy-identity/internal/service"
	"github.com/pesio-ai/be-brgy-identity/internal/throttle"
	jwtpkg "github.com/pesio-ai/be-brgy-identity/pkg/jwt"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "brgy-identity",
	})

	ctx := context.Background()

	privateKeyPEM, publicKeyPEM := cfg.JWTPrivateKey, cfg.JWTPublicKey
	if privateKeyPEM == "" || publicKeyPEM == "" {
		log.Warn().Msg("Generating JWT key pair (development mode)")
		privateKeyPEM, publicKeyPEM, err = jwtpkg.GenerateKeyPair()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate JWT key pair")
		}
	}

	jwtManager, err := jwtpkg.NewManager(privateKeyPEM, publicKeyPEM, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create JWT manager")
	}

	var store repository.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		store = memstore.New()
	default:
		pool := connectDatabase(ctx, cfg, log)
		defer pool.Close()

		pgStore := repository.NewPostgresStore(pool, log)
		if cfg.EnsureSchema {
			if err := pgStore.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to ensure schema")
			}
		}
		store = pgStore
	}

	var (
		limiter service.IssueLimiter = throttle.NewLocalLimiter(cfg.OTPIssueLimit, cfg.OTPIssueWindow)
		guard   service.AttemptGuard = throttle.NewLocalLockout(cfg.OTPMaxAttempts, cfg.OTPLockoutDuration)
	)
	if cfg.RedisAddr != "" {
		client := throttle.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to in-process limiter and lockout")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("Redis connection established")
			limiter = throttle.NewRedisLimiter(client, cfg.OTPIssueLimit, cfg.OTPIssueWindow)
			guard = throttle.NewRedisLockout(client, cfg.OTPMaxAttempts, cfg.OTPLockoutDuration)
		}
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.RabbitMQURL != "" {
		producer, err := notify.NewEventProducer(cfg.RabbitMQURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, codes will only be logged")
		} else {
			defer producer.Close()
			notifier = notify.NewBrokerNotifier(producer, cfg.NotifyExchange, log)
			log.Info().Str("exchange", cfg.NotifyExchange).Msg("Code delivery events enabled")
		}
	}
	if cfg.OTPExposeCode {
		log.Warn().Msg("OTP_EXPOSE_CODE is set; codes are returned in API responses")
	}

	accountService := service.NewAccountService(store, nil, log)
	otpService := service.NewOTPService(store, cfg.OTPTTL, []byte(cfg.OTPSecret), log)
	identityService := service.NewIdentityService(store, accountService, log)
	auditService := service.NewAuditService(store, log)
	authService := service.NewAuthService(store, accountService, otpService, jwtManager, limiter, guard, notifier,
		service.AuthConfig{SessionDuration: cfg.SessionTTL, ExposeCode: cfg.OTPExposeCode}, log)

	httpHandler := handler.NewHTTPHandler(authService, accountService, identityService, auditService, log)
	router := handler.NewRouter(httpHandler, authService, cfg.CORSAllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid DATABASE_URL")
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	log.Info().Str("host", poolConfig.ConnConfig.Host).Str("database", poolConfig.ConnConfig.Database).Msg("Connecting to database")
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")
	return pool
}
