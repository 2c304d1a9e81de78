/**
 * @description
 * This is the main entry point for the ido-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * campaign store, the ledger client, the event producer, the rate limiter, the
 * soft-cap sweep scheduler and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Local .env loading.
 * - github.com/redis/go-redis/v9: Distributed rate limiting.
 * - internal/*, pkg/*: Internal packages for the service.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/ido-service/internal/api"
	"github.com/transfa/ido-service/internal/app"
	"github.com/transfa/ido-service/internal/config"
	"github.com/transfa/ido-service/internal/reserve"
	"github.com/transfa/ido-service/internal/scheduler"
	"github.com/transfa/ido-service/internal/store"
	"github.com/transfa/ido-service/internal/telemetry"
	"github.com/transfa/ido-service/pkg/escrow"
	"github.com/transfa/ido-service/pkg/ledgerclient"
	rmrabbit "github.com/transfa/ido-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"required configuration missing\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting ido-service\" port=%s", cfg.ServerPort)

	ctx := context.Background()

	telemetryProvider, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:  "ido-service",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"telemetry init failed\" err=%v", err)
	}
	metrics, err := telemetry.NewMetrics(telemetryProvider.Meter())
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"metric instruments init failed\" err=%v", err)
	}

	// Campaign store. Without DATABASE_URL the service keeps state in memory.
	var repository store.Repository
	if cfg.DatabaseURL == "" {
		log.Println("level=warn component=bootstrap msg=\"database url missing; using in-memory store\" env=DATABASE_URL")
		repository = store.NewMemoryRepository()
	} else {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 50
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		// Disable prepared statement caching to prevent conflicts
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()
		log.Println("level=info component=bootstrap msg=\"database connected\"")
		repository = store.NewPostgresRepository(dbpool)
	}

	var publisher rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	localLimiter := api.NewLocalRateLimiter()
	var limiter api.RateLimiter = localLimiter
	if cfg.RedisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process rate limiting\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-process rate limiting\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-process rate limiting\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = &api.FallbackRateLimiter{
					Primary:  api.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
					Fallback: localLimiter,
				}
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	deriver, err := escrow.NewDeriver(cfg.EscrowNamespace)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"escrow namespace invalid\" err=%v", err)
	}

	ledgerClient := ledgerclient.NewClient(cfg.LedgerAPIBaseURL, cfg.LedgerAPIKey)

	campaignService := app.NewService(repository, ledgerClient, deriver, publisher, app.Config{
		CurrencyAsset:  cfg.LedgerCurrencyAsset,
		FeeRecipient:   cfg.PlatformFeeAccount,
		EventsExchange: cfg.EventsExchange,
		Reserve: reserve.Schedule{
			OverheadBytes:  cfg.ReserveOverheadBytes,
			ByteRate:       cfg.ReserveByteRate,
			ExemptionYears: cfg.ReserveExemptionYears,
		},
	})
	campaignService.SetMetrics(metrics)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := scheduler.NewJobs(campaignService, app.SchedulerActor, 0, logger)
	sweepScheduler := scheduler.NewScheduler(jobs, logger, cfg.SoftCapSweepSchedule)
	if err := sweepScheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}

	handlers := api.NewCampaignHandlers(campaignService)
	router := api.CampaignRoutes(
		handlers,
		api.AuthMiddleware(cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience),
		api.RouterConfig{
			AllowedOrigins:          cfg.AllowedOrigins(),
			Limiter:                 limiter,
			JoinRateLimitPerMinute:  cfg.JoinRateLimitPerMinute,
			ClaimRateLimitPerMinute: cfg.ClaimRateLimitPerMinute,
		},
	)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	<-sweepScheduler.Stop().Done()
	if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=telemetry msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
