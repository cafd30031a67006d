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

	"github.com/patrickmn/go-cache"

	"tradesync/internal/api"
	"tradesync/internal/config"
	"tradesync/internal/database"
	"tradesync/internal/forecast"
	"tradesync/internal/metrics"
	"tradesync/internal/provider"
	"tradesync/internal/repository"
	"tradesync/internal/service"
	"tradesync/pkg/crypto"
	"tradesync/pkg/ratelimit"
	"tradesync/pkg/retry"
	"tradesync/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		utils.L().Error("server stopped with error", utils.Err(err))
		_ = utils.L().Sync()
		os.Exit(1)
	}
}

func run() error {
	// .env подхватывается до чтения конфигурации
	envLoaded, err := config.LoadEnvFile()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      logOutput(cfg.Logging.Output),
		Development: !cfg.IsProduction(),
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting tradesync",
		utils.String("env", cfg.Env),
		utils.Bool("env_file", envLoaded),
		utils.Bool("auth", cfg.AuthEnabled()),
		utils.Bool("cloud", cfg.CloudEnabled()),
	)

	// Хранилище паролей
	key, ephemeral, err := crypto.LoadKey(cfg.Security.CredentialKey, !cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("credential key: %w", err)
	}
	if ephemeral {
		log.Warn("MT5_CRED_KEY is not set, using ephemeral key: stored credentials will not decrypt after restart")
	}
	vault, err := crypto.NewVault(key, cfg.Security.BcryptCost)
	if err != nil {
		return fmt.Errorf("credential vault: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// База данных
	db, err := database.Open(ctx, cfg.Database, retry.DefaultConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	accountRepo := repository.NewAccountRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Лимитер синхронизаций, простаивающие ключи чистятся в фоне
	limiter := ratelimit.NewSlidingWindow()
	go pruneLimiter(ctx, limiter, cfg.Sync.RateWindow, cfg.Sync.PruneInterval)

	// Провайдеры истории
	providers := provider.NewSet(provider.Config{
		TerminalURL: cfg.Providers.TerminalURL,
		TerminalKey: cfg.Providers.TerminalKey,
		CloudURL:    cfg.Providers.CloudURL,
		CloudToken:  cfg.Providers.CloudToken,
		CloudRPS:    cfg.Providers.CloudRPS,
		Lookback:    cfg.Sync.DefaultLookback,
		Timeout:     cfg.Providers.Timeout,
	})
	defer providers.Close()

	forecaster := forecast.NewClient(forecast.Config{
		BaseURL: cfg.Forecaster.URL,
		APIKey:  cfg.Forecaster.APIKey,
		Timeout: cfg.Forecaster.Timeout,
		Retry:   retry.DefaultConfig(),
	})

	// Сервисы
	syncService := service.NewSyncService(
		accountRepo,
		tradeRepo,
		vault,
		limiter,
		providers.Terminal,
		providers.Cloud,
		service.SyncConfig{
			RateLimit:  cfg.Sync.RateLimit,
			RateWindow: cfg.Sync.RateWindow,
			Timeout:    cfg.Sync.Timeout,
		},
	)
	accountService := service.NewAccountService(accountRepo, vault, providers.Terminal)
	planCache := cache.New(cfg.Forecaster.PlanCacheTTL, 2*cfg.Forecaster.PlanCacheTTL)
	predictService := service.NewPredictService(userRepo, forecaster, planCache)

	router := api.SetupRoutes(&api.Dependencies{
		SyncService:    syncService,
		AccountService: accountService,
		PredictService: predictService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWTSecret:      []byte(cfg.Security.JWTSecret),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// pruneLimiter периодически удаляет ключи без событий в окне
func pruneLimiter(ctx context.Context, limiter *ratelimit.SlidingWindow, window, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(window); n > 0 {
				utils.L().WithComponent("ratelimit").Debug("pruned idle keys", utils.Count(n))
			}
			metrics.SetRateLimiterKeys(limiter.Len())
		}
	}
}

// logOutput - "stdout" и "stderr" пишутся в консоль, иначе путь к файлу
func logOutput(output string) string {
	switch output {
	case "", "stdout", "stderr":
		return ""
	default:
		return output
	}
}
