package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mirrorbooth/mirrorbooth/internal/config"
	"github.com/mirrorbooth/mirrorbooth/internal/records"
	"github.com/mirrorbooth/mirrorbooth/internal/server"
	"github.com/mirrorbooth/mirrorbooth/internal/utils"
	"github.com/mirrorbooth/mirrorbooth/pkg/normalize"
	"github.com/mirrorbooth/mirrorbooth/pkg/predict"
	"github.com/mirrorbooth/mirrorbooth/pkg/storage"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string
	var debug bool
	flag.StringVar(&configPath, "config", "", "config file path (default ~/.config/mirrorbooth/config.json)")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	godotenv.Load()

	cfg := loadConfig(logger, configPath)
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup := openRecords(ctx, logger, cfg)
	defer cleanup()

	blobs, err := storage.NewFileStore(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}

	srv := server.New(server.Options{
		Normalizer: normalize.NewWithConfig(normalize.Config{
			Policy:  cfg.Normalizer.PolicyValue(),
			Quality: cfg.Normalizer.Quality,
		}),
		Predictor: predict.NewClient(predict.Options{
			BaseURL:      cfg.Predict.BaseURL,
			Token:        cfg.Predict.Token,
			PollInterval: cfg.Predict.PollInterval(),
			MaxAttempts:  cfg.Predict.MaxAttempts,
			Logger:       &logger,
		}),
		Blobs:        blobs,
		Records:      store,
		ModelVersion: cfg.Predict.ModelVersion,
		Logger:       logger,
	})

	root := chi.NewRouter()
	// The prediction service fetches uploads back through this route.
	root.Handle("/files/*", http.StripPrefix("/files/",
		http.FileServer(http.Dir(blobs.Root()))))
	root.Mount("/", srv.Routes())

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: root,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("booth server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

func loadConfig(logger zerolog.Logger, path string) *config.Config {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default()
		}
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}
	return cfg
}

// openRecords selects the record store: Postgres when a DSN is configured,
// in-memory otherwise.
func openRecords(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (records.Store, func()) {
	if cfg.Database.DSN == "" {
		logger.Info().Msg("no DATABASE_URL, using in-memory photo records")
		return records.NewMemoryStore(), func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("database unreachable")
	}

	store := records.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("using postgres photo records")
	return store, pool.Close
}
