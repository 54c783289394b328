package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/jobs"
	"mediagen/internal/persistence"
	"mediagen/internal/providers/genai"
	"mediagen/internal/providers/image"
	"mediagen/internal/providers/qwen"
	"mediagen/internal/providers/video"
	"mediagen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	if err := repo.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("api: migrate failed")
	}

	cache, err := storage.OpenLocalCache(cfg.LocalCachePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open local cache")
	}
	defer cache.Close()

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	files, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	records := repo.NewRecordRepository(runner)
	gate, err := persistence.NewGate(records, cache, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure persistence")
	}

	creds := credentials.NewStore(runner)
	httpClient := &http.Client{Timeout: 60 * time.Second}

	videoClient, err := video.NewClient(video.Options{
		Key:        creds.Key(credentials.ProviderVideo, cfg.VideoAPIKey),
		BaseURL:    cfg.VideoBaseURL,
		Model:      cfg.VideoModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure video client")
	}
	qwenClient, err := qwen.NewClient(qwen.Options{
		Key:        creds.Key(credentials.ProviderQwen, cfg.QwenAPIKey),
		BaseURL:    cfg.QwenBaseURL,
		Model:      cfg.QwenModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure qwen client")
	}
	geminiClient, err := genai.NewClient(genai.Options{
		Key:        creds.Key(credentials.ProviderGemini, cfg.GeminiAPIKey),
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure gemini client")
	}
	chain, err := image.NewChain(image.NewQwenGenerator(qwenClient), image.NewGeminiGenerator(geminiClient), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure image providers")
	}

	store := jobs.NewStore()
	scheduler := jobs.NewScheduler(videoClient, store, jobs.Options{
		Interval: cfg.PollInterval,
		Timeout:  cfg.JobTimeout,
		Logger:   &logger,
		Provider: video.ProviderName,
	})
	service := jobs.NewService(jobs.ServiceConfig{
		Backend:   videoClient,
		Store:     store,
		Scheduler: scheduler,
		Repo:      repo.NewJobRepository(runner),
		Saver:     gate,
		Logger:    &logger,
	})
	if n, err := service.Resume(ctx); err != nil {
		logger.Error().Err(err).Msg("api: resume jobs failed")
	} else if n > 0 {
		logger.Info().Int("jobs", n).Msg("api: resumed polling")
	}

	app := &handlers.App{
		Config:  cfg,
		Logger:  logger,
		Jobs:    service,
		Images:  chain,
		Gate:    gate,
		Files:   files,
		Local:   cache,
		Durable: records,
		DB:      dbpool,
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, files.BasePath()))

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	service.Close()
	scheduler.Close()
	logger.Info().Msg("api: stopped")
}
