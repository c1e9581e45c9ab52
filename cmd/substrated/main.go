// Command substrated serves the governed memory substrate API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/weftlabs/substrate/pkg/api"
	"github.com/weftlabs/substrate/pkg/auth"
	"github.com/weftlabs/substrate/pkg/config"
	"github.com/weftlabs/substrate/pkg/executor"
	"github.com/weftlabs/substrate/pkg/governance"
	"github.com/weftlabs/substrate/pkg/observability"
	"github.com/weftlabs/substrate/pkg/proposals"
	"github.com/weftlabs/substrate/pkg/substrate"
	"github.com/weftlabs/substrate/pkg/timeline"
	"github.com/weftlabs/substrate/pkg/validator"
)

var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stderr)
	}

	switch args[1] {
	case "serve", "server":
		return runServe(stderr)
	case "migrate":
		return runMigrate(stdout, stderr)
	case "health":
		return runHealth(stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  substrated <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Start the API server (default)")
	fmt.Fprintln(w, "  migrate   Create or update the database schema")
	fmt.Fprintln(w, "  health    Probe a running server")
	fmt.Fprintln(w, "  version   Print the build version")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	inits := []func(context.Context) error{
		substrate.NewSQLStore(db).Init,
		timeline.NewSQLStore(db).Init,
		proposals.NewSQLStore(db).Init,
		governance.NewSQLSettingsStore(db).Init,
	}
	for _, init := range inits {
		if err := init(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runMigrate(stdout, stderr io.Writer) int {
	cfg := config.Load()
	ctx := context.Background()

	db, err := openDB(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	if err := initSchema(ctx, db); err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "schema up to date")
	return 0
}

func runHealth(stdout, stderr io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

//nolint:gocognit
func runServe(stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	ctx := context.Background()

	db, err := openDB(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	if err := initSchema(ctx, db); err != nil {
		fmt.Fprintf(stderr, "serve: init schema: %v\n", err)
		return 1
	}
	logger.Info("database ready", "driver", cfg.DatabaseDriver)

	// Stores.
	subStore := substrate.NewSQLStore(db)
	timelineStore := timeline.NewSQLStore(db)
	proposalStore := proposals.NewSQLStore(db)
	settingsStore := governance.NewSQLSettingsStore(db)

	// Cascade fan-out is wired only when the deployment both configures
	// Redis and leaves cascade events enabled at the environment layer.
	var cascade timeline.CascadePublisher
	if cfg.RedisURL != "" && governance.DefaultsFromEnv(os.LookupEnv).CascadeEventsEnabled {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(stderr, "serve: parse REDIS_URL: %v\n", err)
			return 1
		}
		cascade = timeline.NewRedisCascade(redis.NewClient(redisOpts), "timeline")
		logger.Info("cascade publisher ready")
	}

	emitter := timeline.NewEmitter(timelineStore, cascade, logger)

	engine, err := executor.NewEngine(subStore)
	if err != nil {
		fmt.Fprintf(stderr, "serve: init engine: %v\n", err)
		return 1
	}

	manager := proposals.NewManager(proposalStore, engine, subStore, emitter, logger)

	resolver := governance.NewResolver(settingsStore, os.LookupEnv, logger)
	if cfg.PolicyProfile != "" {
		profile, err := config.LoadProfile(cfg.ProfilesDir, cfg.PolicyProfile)
		if err != nil {
			fmt.Fprintf(stderr, "serve: %v\n", err)
			return 1
		}
		resolver = resolver.WithBase(profile.Flags())
		logger.Info("governance profile loaded", "profile", profile.Code)
	}

	advisor, err := governance.NewHybridAdvisor()
	if err != nil {
		fmt.Fprintf(stderr, "serve: init advisor: %v\n", err)
		return 1
	}

	var validatorClient *validator.Client
	if cfg.ValidatorURL != "" {
		validatorClient = validator.NewClient(validator.Config{
			URL:     cfg.ValidatorURL,
			Timeout: cfg.ValidatorTimeout,
		}, logger)
	}

	srv := api.NewServer(api.Options{
		Manager:     manager,
		Resolver:    resolver,
		Settings:    settingsStore,
		Timeline:    timelineStore,
		Advisor:     advisor,
		Validator:   validatorClient,
		Logger:      logger,
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
	})

	obsConfig := observability.DefaultConfig()
	obsConfig.ServiceVersion = version
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		obsConfig.Enabled = true
		obsConfig.OTLPEndpoint = endpoint
		obsConfig.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}
	obs, err := observability.New(ctx, obsConfig)
	if err != nil {
		fmt.Fprintf(stderr, "serve: init observability: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	jwtValidator := auth.NewJWTValidator(cfg.JWTSecret)
	if jwtValidator == nil {
		logger.Warn("JWT_SECRET not set, all authenticated routes will reject")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           obs.Middleware(srv.Routes(jwtValidator, auth.LimiterConfig{RPS: 50, Burst: 100})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port, "version", version)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "serve: %v\n", err)
			return 1
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
			return 1
		}
	}
	return 0
}
