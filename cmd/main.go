package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wagering_service/internal/api"
	"wagering_service/internal/config"
	"wagering_service/internal/metrics"
	"wagering_service/internal/notify"
	"wagering_service/internal/pkg/lock"
	"wagering_service/internal/pkg/redisbus"
	"wagering_service/internal/settings"
	"wagering_service/internal/stats"
	"wagering_service/internal/wallet"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.Database.ConnString()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxConnLifetime)
	defer sqlDB.Close()

	if err := db.AutoMigrate(&settings.PlatformSettings{}, &wallet.PlayerBalances{}, &wallet.Transaction{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	defaults, err := cfg.Platform.Settings()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid platform defaults")
	}
	settingsRepo := settings.NewGormRepository(db)
	seeded, err := settingsRepo.SeedIfMissing(ctx, defaults)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed platform settings")
	}
	if seeded {
		log.Info().Msg("Platform settings seeded from configuration")
	}
	provider := settings.NewProvider(settingsRepo)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notifiers := notify.Multi{notify.NewHub(m)}
	if rdb := redisbus.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); rdb != nil {
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		notifiers = append(notifiers, notify.NewRedisPublisher(rdb, cfg.Redis.BalanceChannel))

		settingsSync := settings.NewRedisSync(rdb, cfg.Redis.SettingsChannel)
		provider.SetBroadcaster(settingsSync)
		go func() {
			if err := settingsSync.Watch(ctx, provider, nil); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("settings watcher stopped")
			}
		}()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis notifications enabled")
	}

	ledger := wallet.NewGormRepository(db)
	walletService := wallet.NewService(ledger, provider, wallet.Config{
		CommitTimeout: cfg.Settlement.CommitTimeout,
		LockTimeout:   cfg.Settlement.LockTimeout,
		MaxRetries:    cfg.Settlement.MaxRetries,
		RetryDelay:    cfg.Settlement.RetryDelay,
		MaxRetryDelay: cfg.Settlement.MaxRetryDelay,
	},
		wallet.WithNotifier(notifiers),
		wallet.WithMetrics(m),
		wallet.WithPlayerLock(lock.NewPlayerLock()),
	)
	aggregator := stats.NewAggregator(ledger, provider, m)

	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(walletService, aggregator, provider), reg)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
