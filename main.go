package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	config "github.com/phillip/membership-portal-go/config"
	events "github.com/phillip/membership-portal-go/events"
	ledger "github.com/phillip/membership-portal-go/ledger"
	middleware "github.com/phillip/membership-portal-go/middleware"
	paystack "github.com/phillip/membership-portal-go/paystack"
	reconcile "github.com/phillip/membership-portal-go/reconcile"
	routes "github.com/phillip/membership-portal-go/routes"
	utils "github.com/phillip/membership-portal-go/utils"
)

func main() {
	cfg := config.LoadConfig()
	logger := utils.NewLogger(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set, every authenticated request will be rejected")
	}
	if cfg.Paystack.SecretKey == "" {
		logger.Warn("PAYSTACK_SECRET_KEY is not set, verification and webhooks will fail")
	}

	ctx := context.Background()
	if err := config.ConnectDB(ctx, cfg); err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer func() {
		_ = cfg.MongoClient.Disconnect(context.Background())
	}()

	store := ledger.NewMongoStore(cfg.MongoClient, cfg.DBName)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Fatal("could not create ledger indexes")
	}

	var notifiers reconcile.Notifiers
	mailer := utils.NewMailer(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.From)
	if mailer.Enabled() {
		notifiers = append(notifiers, mailer)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	gateway := paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout)
	engine := reconcile.NewEngine(store, gateway, logger, reconcile.Options{
		MinorUnitFactor: cfg.MinorUnitFactor,
		Notifier:        notifiers,
	})

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"ETag", "Last-Modified", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRoutes(r, cfg, routes.Dependencies{
		Engine:   engine,
		Store:    store,
		Verifier: paystack.NewSignatureVerifier(cfg.Paystack.SecretKey),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
