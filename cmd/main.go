package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/api"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/artifact"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/config"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/events"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/gateway"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/health"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/lock"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/middleware"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/notification"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/repository"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/service"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

const gatewayName = "paystack"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("ticketing-service", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Ticketing Service")

	if cfg.JWTSecret == "" {
		telemetry.Logger.Fatal("JWT_SECRET_KEY is required")
	}
	if cfg.PaystackSecret == "" {
		telemetry.Logger.Warn("PAYSTACK_SECRET_KEY is empty; provider calls will be rejected")
	}

	// Storage: PostgreSQL, or an in-process store when no database is configured
	var store interfaces.TicketingStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		repo := repository.NewTicketingRepository(db)
		if err := repo.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		store = repo
	} else {
		telemetry.Logger.Warn("DATABASE_URL is empty; using in-memory store")
		store = repository.NewMemoryStore()
	}

	// Fulfillment lock: Redis across replicas, in-process otherwise
	var locker interfaces.Locker
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, "ticketing:fulfill", cfg.LockTTL)
	} else {
		telemetry.Logger.Warn("REDIS_URL is empty; fulfillment lock is process-local")
		locker = lock.NewLocalLocker()
	}

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	defer kafkaWriter.Close()

	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   events.TopicVerificationRequested,
		GroupID: "ticketing-service",
	})
	defer kafkaReader.Close()

	// Payment gateway behind a circuit breaker, mirrored into gRPC health
	gatewayHealth := health.NewGatewayHealth()
	gatewayHealth.Track(gatewayName)

	breaker := gateway.NewCircuitBreaker(gateway.CircuitBreakerConfig{
		Name:             gatewayName,
		FailureThreshold: cfg.BreakerFailureThreshold,
		Timeout:          cfg.BreakerTimeout,
		OnStateChange:    gatewayHealth.OnStateChange,
	})
	paystack := gateway.NewPaystackClient(gateway.PaystackConfig{
		BaseURL:     cfg.PaystackBaseURL,
		SecretKey:   cfg.PaystackSecret,
		CallbackURL: cfg.PaymentCallbackURL(),
		Timeout:     cfg.GatewayTimeout,
	}, breaker)

	// Initialize services
	publisher := events.NewPublisher(kafkaWriter, cfg.PublishTimeout)
	orchestrator := service.NewOrchestrator(
		store,
		artifact.NewQRGenerator(cfg.QRCodeDir),
		notification.NewNatsSender(nc, cfg.NotificationSubj, notification.DefaultTimeout),
		publisher,
		locker,
	)
	paymentService := service.NewPaymentService(store, paystack, orchestrator, publisher)
	ticketService := service.NewTicketService(store)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go paymentService.ConsumeVerificationRequests(ctx, kafkaReader)

	// Setup Gin router
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	r := api.NewRouter(paymentService, ticketService, []byte(cfg.JWTSecret), limiter)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Ticketing Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// gRPC health endpoint
	grpcServer := grpc.NewServer()
	gatewayHealth.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		telemetry.Logger.Fatal("Failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		telemetry.Logger.Info("gRPC health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			telemetry.Logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stop()
	gatewayHealth.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
