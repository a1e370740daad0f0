// Package main provides the entry point for the credential gateway server
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/credgate/go-core/internal/api/handlers"
	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/auth/apikey"
	"github.com/credgate/go-core/internal/auth/token"
	"github.com/credgate/go-core/internal/cache"
	"github.com/credgate/go-core/internal/db"
	"github.com/credgate/go-core/internal/metrics"
	"github.com/credgate/go-core/internal/ratelimit"
	"github.com/credgate/go-core/internal/server"
	"github.com/credgate/go-core/internal/server/middleware"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		httpPort        = flag.Int("http-port", 8080, "HTTP server port")
		keyLifetime     = flag.Duration("key-cache-ttl", apikey.DefaultLifetime, "Verification cache entry lifetime")
		refreshBelow    = flag.Duration("key-cache-refresh-below", apikey.DefaultRefreshBelow, "Remaining TTL below which cache entries are refreshed")
		tokenLifetime   = flag.Duration("session-ttl", token.DefaultLifetime, "Session token lifetime")
		rateLimitFile   = flag.String("rate-limit-config", "", "YAML rate limit rule file (optional, env overrides apply on top of defaults otherwise)")
		headersEnabled  = flag.Bool("rate-limit-headers", false, "Attach X-RateLimit-* headers to responses")
		logLevel        = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat       = flag.String("log-format", "json", "Log format (json, console)")
		logFile         = flag.String("log-file", "", "Rotating log file path (optional, stderr otherwise)")
		migrateOnly     = flag.Bool("migrate", false, "Run migrations and exit")
		showVersion     = flag.Bool("version", false, "Show version information")
		gracefulTimeout = flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("credgate-server %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	logger, err := initLogger(*logLevel, *logFormat, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting credential gateway",
		zap.String("version", Version),
		zap.Int("http_port", *httpPort),
	)

	// Postgres: source of truth for API keys
	conn, err := db.Open(db.LoadConfigFromEnv())
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer conn.Close()

	runner, err := db.NewMigrationRunner(conn, logger)
	if err != nil {
		logger.Fatal("Failed to create migration runner", zap.Error(err))
	}
	if err := runner.Up(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if *migrateOnly {
		logger.Info("Migrations complete")
		return
	}

	// Redis: verification cache, session tokens, rate limit counters
	rdb, err := cache.NewClient(cache.LoadRedisConfigFromEnv())
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New("credgate")
	hasher := auth.NewSecretHasher()

	store, err := apikey.NewPostgresStore(conn)
	if err != nil {
		logger.Fatal("Failed to create key store", zap.Error(err))
	}

	verifier := apikey.NewVerifier(store, rdb, hasher, apikey.VerifierConfig{
		Lifetime:     *keyLifetime,
		RefreshBelow: *refreshBelow,
	}, logger, m)
	keyService := apikey.NewService(store, rdb, hasher, logger, m)
	tokenService := token.NewService(rdb, *tokenLifetime, logger, m)

	rlConfig, err := loadRateLimitConfig(*rateLimitFile, *headersEnabled)
	if err != nil {
		logger.Fatal("Failed to load rate limit config", zap.Error(err))
	}
	limiter := ratelimit.NewRedisLimiter(rdb, rlConfig.KeyPrefix)

	gate := middleware.NewGate(
		[]middleware.Resolver{
			middleware.NewAPIKeyResolver(verifier),
			middleware.NewSessionTokenResolver(tokenService),
		},
		limiter, rlConfig, logger, m,
	)

	srv, err := server.New(
		server.Config{
			Port:            *httpPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: *gracefulTimeout,
		},
		gate,
		server.NewHealthHandler(conn, rdb, logger),
		handlers.NewKeysHandler(keyService, logger),
		handlers.NewSessionsHandler(tokenService, logger),
		m,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		if err := srv.Stop(); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}

	logger.Info("Server stopped successfully")
}

// initLogger initializes the zap logger, optionally with file rotation
func initLogger(level, format, file string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	if file != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
		var encoder zapcore.Encoder
		if format == "console" {
			encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		} else {
			encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		}
		core := zapcore.NewCore(encoder, sink, zapLevel)
		return zap.New(core), nil
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	return config.Build()
}

// loadRateLimitConfig layers sources: a YAML file when given, else defaults
// with environment overrides. The headers flag wins over both.
func loadRateLimitConfig(file string, headersEnabled bool) (*ratelimit.Config, error) {
	var (
		config *ratelimit.Config
		err    error
	)
	if file != "" {
		config, err = ratelimit.LoadConfigFromFile(file)
		if err != nil {
			return nil, err
		}
	} else {
		config = ratelimit.LoadConfigFromEnv()
	}
	if headersEnabled {
		config.HeadersEnabled = true
	}
	return config, nil
}
