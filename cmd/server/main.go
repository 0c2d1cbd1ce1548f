package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"points-service/config"
	"points-service/internal/api"
	"points-service/internal/broker"
	"points-service/internal/gateway"
	"points-service/internal/points"
	"points-service/internal/redisclient"
	"points-service/internal/service"
	"points-service/internal/store"
	"points-service/internal/util"
	"points-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting points service")

	tp, err := util.InitTracer("points-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	calculator := points.NewCalculator(
		cfg.Business.FeePercentage,
		cfg.Business.MinPurchaseAmount,
		cfg.Business.MaxPurchaseAmount,
	)
	validator := service.NewSignatureValidator(cfg.Webhook.Secret, cfg.Webhook.AllowUnsigned)

	creditService := service.NewCreditPointsService(db, db, db, db, db, redisClient, eventPublisher)
	createOrderService := service.NewCreateOrderService(
		db, db, db, db, gatewayClient, eventPublisher, calculator, cfg.Business.OrderExpiry)
	webhookService := service.NewWebhookService(
		service.WebhookServiceConfig{
			Enabled:      cfg.Webhook.Enabled,
			DedupeWindow: cfg.Webhook.DedupeWindow,
		},
		validator, db, db, db, db, db, redisClient, creditService, eventPublisher,
		cfg.Webhook.ReleasePendingOnFailure)
	pollService := service.NewPollService(db, gatewayClient, webhookService.Applier())
	balanceService := service.NewBalanceService(db, db, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	expiryWorker := worker.NewExpiryWorker(pollService, cfg.Business.ExpirySweep)
	go func() {
		if err := expiryWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Expiry worker error: %v", err)
		}
	}()

	cacheConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	cacheWorker := worker.NewBalanceCacheWorker(cacheConsumer, balanceService)
	go func() {
		if err := cacheWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Balance cache worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(createOrderService, pollService, webhookService, balanceService, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := cacheWorker.Stop(); err != nil {
		log.Printf("Error stopping balance cache worker: %v", err)
	}

	log.Println("Server exited")
}
