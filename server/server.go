package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sunobot/cache"
	"sunobot/config"
	"sunobot/core/clock"
	"sunobot/core/generation"
	"sunobot/core/history"
	"sunobot/core/pool"
	"sunobot/core/quota"
	"sunobot/core/suno"
	"sunobot/core/utils"
	"sunobot/db"
	"sunobot/logger"
	"sunobot/repository"
	"sunobot/storage"
)

// App 组装好的各个组件
type App struct {
	Pool         *pool.ServerPool
	Quota        *quota.Manager
	History      *history.Store
	Orchestrator *generation.Orchestrator
	Handler      *APIHandler

	closers []func() error
}

// Close 释放外部连接
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("error during shutdown", logger.ErrorField(err))
		}
	}
}

// Build 按配置创建所有组件，可选的后端（Redis、MySQL、MinIO）在这里连接
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	clk := clock.System{}

	if len(cfg.SunoServers) < 2 {
		logger.Warn("fewer than two Suno servers configured, rotation has nothing to fall back to",
			logger.Strings("servers", cfg.SunoServers))
	}

	client := suno.NewClient()
	p, err := pool.New(cfg.SunoServers, client, cfg.ProbeTimeout)
	if err != nil {
		return nil, err
	}
	app.Pool = p

	var store quota.Store
	switch cfg.QuotaBackend {
	case config.QuotaBackendRedis:
		if err := cache.ConnectRedis(cfg); err != nil {
			return nil, err
		}
		app.closers = append(app.closers, cache.CloseRedis)
		store = cache.NewQuotaCache()
		logger.Info("quota backend: redis", logger.String("host", cfg.RedisHost))
	default:
		store = quota.NewMemoryStore()
		logger.Info("quota backend: memory")
	}
	app.Quota = quota.NewManager(store, cfg.UserDailyLimit, clk)

	histOpts := []history.Option{history.WithLimit(cfg.HistoryLimit)}
	archived := false
	if cfg.MinioEnabled() {
		archive, err := storage.NewArchive(ctx, cfg)
		if err != nil {
			// 归档只是副本，连不上时照常运行
			logger.Warn("MinIO archive disabled", logger.ErrorField(err))
		} else {
			histOpts = append(histOpts, history.WithArchive(archive))
			archived = true
		}
	}
	hist, err := history.Open(cfg.HistoryFile, histOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.History = hist

	var records repository.GenerationRepository
	if cfg.RecordsEnabled {
		if err := db.ConnectGormDB(cfg); err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, db.CloseGormDB)
		records = repository.NewGormGenerationRepository(db.GormDB)
	}

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create temp dir %s: %w", cfg.TempDir, err)
	}

	app.Orchestrator = generation.NewOrchestrator(client, utils.NewDownloader(), p, app.Quota, hist, generation.Options{
		PollInterval:     cfg.PollInterval,
		PollTimeout:      cfg.PollTimeout,
		ProgressInterval: cfg.ProgressInterval,
		TempDir:          cfg.TempDir,
		Clock:            clk,
		Records:          records,
	})

	app.Handler = NewAPIHandler(app.Orchestrator, app.Quota, hist, p, cfg.BotToken, cfg.FileTokenTTL, clk)

	logger.Info("components ready",
		logger.Int("servers", p.Size()),
		logger.Int("historyLimit", hist.Limit()),
		logger.Bool("archive", archived),
		logger.Bool("records", records != nil))
	return app, nil
}

// watchDailyLimit .env 中的 USER_DAILY_LIMIT 变化时更新额度上限
func watchDailyLimit(ctx context.Context, cfg *config.Config, m *quota.Manager) {
	err := config.WatchEnvFile(ctx, cfg.EnvFile, func(values map[string]string) {
		if n, ok := config.DailyLimitFrom(values); ok && n != m.Ceiling() {
			m.SetCeiling(n)
			logger.Info("daily limit reloaded", logger.Int("limit", n))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("env file watcher stopped", logger.ErrorField(err))
	}
}

// Start initializes and starts the HTTP server.
func Start(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	go watchDailyLimit(ctx, cfg, app.Quota)

	// 生成请求会阻塞到轮询结束，写超时要比轮询超时长
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      NewRouter(app.Handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.PollTimeout + 2*time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logger.String("addr", cfg.HTTPAddr),
			logger.Int("servers", app.Pool.Size()),
			logger.Int("dailyLimit", cfg.UserDailyLimit))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
