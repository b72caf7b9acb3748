package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/storefront/internal/backend"
	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/cache"
	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/storefront/internal/middleware/logging"
	"github.com/Skotchmaster/storefront/internal/payfast"
	"github.com/Skotchmaster/storefront/internal/repo"
)

func main() {
	cfg := config.Load()
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmpty(cfg.PayFast.MerchantID, "PAYFAST_MERCHANT_ID")
	config.MustNonEmpty(cfg.PayFast.ReturnURL, "PAYFAST_RETURN_URL")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	r := &repo.GormRepo{DB: gdb}

	var rdb *redis.Client
	persister := cache.NewLayeredPersister(r, nil)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		persister = cache.NewLayeredPersister(r, cache.NewRedisCache(rdb))
	} else {
		logger.Warn("redis disabled, REDIS_ADDR is empty")
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewProducer(cfg.KafkaBrokers)
	} else {
		logger.Warn("kafka disabled, KAFKA_BROKERS is empty")
	}

	store := basket.NewStore(persister)
	api := backend.NewClient(cfg.BackendURL)
	orch := checkout.NewOrchestrator(r, store, payfast.NewClient(cfg.PayFast.ProcessURL), api, pub, checkout.Config{
		Merchant: payfast.Merchant{
			ID:         cfg.PayFast.MerchantID,
			Key:        cfg.PayFast.MerchantKey,
			Passphrase: cfg.PayFast.Passphrase,
			ReturnURL:  cfg.PayFast.ReturnURL,
			CancelURL:  cfg.PayFast.CancelURL,
			NotifyURL:  cfg.PayFast.NotifyURL,
		},
		WaitTimeout:       cfg.PaymentWaitTimeout,
		ConfirmationRoute: cfg.ConfirmationRoute,
	})

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	var csrfMW echo.MiddlewareFunc
	if cfg.CSRFEnabled {
		csrfMW = csrf.Middleware(csrf.Config{Secure: cfg.CookieSecure})
	}

	httpserver.Register(e, &httpserver.Deps{
		BasketHandler:   &httpserver.BasketHTTP{Store: store, Products: api, Publisher: pub},
		CheckoutHandler: &httpserver.CheckoutHTTP{Orch: orch},
		AdminHandler:    &httpserver.AdminHTTP{Sessions: r},
		JWTSecret:       cfg.JWTSecret,
		CSRF:            csrfMW,
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go checkout.NewSweeper(orch, cfg.SweepInterval, logger).Run(ctx)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := pub.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}
