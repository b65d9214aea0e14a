package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/handlers"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/logger"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/metrics"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository/memory"
	redis_repo "github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository/redis"
	sql_repo "github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository/sql"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/router"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/server"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.AppEnv)

	var redisClient *redis.Client
	if cfg.RedisSettings.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisSettings.Address,
			Password: cfg.RedisSettings.Password,
			DB:       cfg.RedisSettings.DB,
		})
		defer redisClient.Close()
	}

	userRepo, closeUsers := openUserRepository(cfg, redisClient)
	defer closeUsers()

	var stateRepo repository.StateRepository
	if redisClient != nil {
		stateRepo = redis_repo.NewRedisStateRepository(redisClient)
	} else {
		memoryStates := memory.NewMemoryStateRepository(time.Minute)
		defer memoryStates.StopCleanup()
		stateRepo = memoryStates
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	authMetrics := metrics.NewAuthMetrics(registry)

	resolver := service.NewIdentityResolver(userRepo, cfg.Auth.AdminUsername, cfg.Auth.CallTimeout)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.Auth.CallTimeout)
	if _, err := resolver.EnsureAdmin(log.Logger.WithContext(startupCtx)); err != nil {
		log.Warn().Err(err).Str("admin", cfg.Auth.AdminUsername).Msg("Acting admin account is missing, forced user creation will not save users")
	}
	cancelStartup()

	httpClient := &http.Client{Timeout: cfg.Auth.CallTimeout}
	providers := service.NewProviderRegistry(cfg.Providers, httpClient, cfg.Auth)
	authenticator := service.NewAuthenticator(
		cfg.Providers,
		service.NewClaimsExtractor(httpClient, providers, cfg.Auth.CallTimeout),
		service.NewPolicyEnforcer(),
		resolver,
		authMetrics,
		cfg.Auth.CallTimeout,
	)
	sessions := service.NewJWTService(cfg.JWTSecret, cfg.Session)

	app := server.New(authMetrics)
	router.SetupOpenIDRoutes(app, handlers.NewOpenIDHandler(
		providers,
		authenticator,
		sessions,
		stateRepo,
		userRepo,
		cfg,
	))
	router.SetupUserRoutes(app, handlers.NewUserHandler(userRepo), sessions)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		log.Info().Str("port", cfg.Port).Str("userStore", cfg.UserStore).Msg("Server starting")
		if err := app.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server stopped gracefully.")
}

// openUserRepository picks the user store named by USER_STORE.
func openUserRepository(cfg *config.Config, redisClient *redis.Client) (repository.UserRepository, func()) {
	switch cfg.UserStore {
	case "redis":
		if redisClient == nil {
			log.Fatal().Msg("USER_STORE=redis requires REDIS_ADDRESS")
		}
		return redis_repo.NewRedisUserRepository(redisClient), func() {}
	case "sql":
		db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseSettings)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("Failed opening database connection")
		}
		repo := sql_repo.NewSQLUserRepository(db, cfg.DatabaseDriver)
		// Run the table migration.
		if err := repo.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed creating schema resources")
		}
		return repo, func() { db.Close() }
	default:
		log.Warn().Str("userStore", cfg.UserStore).Msg("Using in-memory user store (NOT FOR PRODUCTION)")
		return memory.NewMemoryUserRepository(), func() {}
	}
}
