package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmarian/price-watch/internal/api"
	"github.com/dmarian/price-watch/internal/catalog"
	"github.com/dmarian/price-watch/internal/config"
	"github.com/dmarian/price-watch/internal/lock"
	"github.com/dmarian/price-watch/internal/push"
	"github.com/dmarian/price-watch/internal/store/postgres"
	"github.com/dmarian/price-watch/internal/watch"
	"github.com/dmarian/price-watch/pkg/logx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load config")
	}
	logx.Init(cfg.Environment)
	logx.Info().Int("poll_interval_s", cfg.PollInterval).Str("upstream", cfg.UpstreamURL).Msg("starting price watch")

	logx.Info().Str("database", maskDatabaseURL(cfg.DatabaseURL)).Msg("connecting to database")
	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()

	fetcher := catalog.NewClient(cfg.UpstreamURL, time.Duration(cfg.FetchTimeout)*time.Second)

	opts := []watch.Option{watch.WithConcurrency(cfg.WorkerCount)}

	var bot *push.Telegram
	if cfg.PushEnabled() {
		bot, err = push.NewTelegram(cfg.TelegramBotToken, store)
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to initialize telegram bot")
		}
		opts = append(opts, watch.WithDispatcher(bot))
		logx.Info().Msg("push delivery enabled")
	} else {
		logx.Info().Msg("no bot token configured, push delivery disabled")
	}

	var locker *lock.Locker
	if cfg.LockEnabled() {
		locker, err = lock.New(cfg.RedisURL, time.Duration(cfg.LockTTL)*time.Second)
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to initialize run lock")
		}
		defer locker.Close()
		logx.Info().Msg("redis run lock enabled")
	}

	watcher := watch.New(store, fetcher, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logx.Info().Str("signal", sig.String()).Msg("initiating shutdown")
		cancel()
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchWorker(ctx, watcher, locker, time.Duration(cfg.PollInterval)*time.Second)
	}()

	if bot != nil {
		handler := push.NewHandler(bot, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			botWorker(ctx, handler, cfg.PollingTimeout)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		serveAPI(ctx, store, cfg)
	}()

	wg.Wait()
	logx.Info().Msg("shutdown complete")
}

func maskDatabaseURL(url string) string {
	return regexp.MustCompile(`://[^:]+:[^@]+@`).ReplaceAllString(url, "://*****:*****@")
}

// watchWorker runs the job immediately and then on every tick until the
// context is cancelled. When a run lock is configured, a run is skipped
// if another instance holds the lease.
func watchWorker(ctx context.Context, watcher *watch.Watcher, locker *lock.Locker, interval time.Duration) {
	logx.Info().Dur("interval", interval).Msg("watch worker started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, watcher, locker)
	for {
		select {
		case <-ctx.Done():
			logx.Info().Msg("watch worker shutting down")
			return
		case <-ticker.C:
			runOnce(ctx, watcher, locker)
		}
	}
}

func runOnce(ctx context.Context, watcher *watch.Watcher, locker *lock.Locker) {
	if locker != nil {
		ok, err := locker.Acquire(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("failed to acquire run lock, skipping run")
			return
		}
		if !ok {
			logx.Info().Msg("another instance holds the run lock, skipping run")
			return
		}
		defer func() {
			if err := locker.Release(ctx); err != nil {
				logx.Warn().Err(err).Msg("failed to release run lock")
			}
		}()
	}

	if err := watcher.Run(ctx); err != nil {
		logx.Error().Err(err).Msg("price watch run failed")
	}
}

func botWorker(ctx context.Context, handler *push.Handler, pollingTimeout int) {
	logx.Info().Int("polling_timeout_s", pollingTimeout).Msg("bot worker started")
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollingTimeout

	updates := handler.Bot.API.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			logx.Info().Msg("bot worker shutting down")
			handler.Bot.API.StopReceivingUpdates()
			return
		case update := <-updates:
			if err := handler.HandleUpdate(ctx, update); err != nil {
				logx.Error().Err(err).Msg("failed to handle bot update")
			}
		}
	}
}

func serveAPI(ctx context.Context, s *postgres.Store, cfg *config.Config) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	api.NewHandler(s).Register(r)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		logx.Info().Str("addr", cfg.ListenAddr).Msg("api server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error().Err(err).Msg("api server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("api server shutdown failed")
	}
}
