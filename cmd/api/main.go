/**
 * @description
 * This is the main entry point for the bank API.
 *
 * It initializes all the necessary components: configuration, database pool and
 * migrations, the optional Redis login throttle, the RabbitMQ producer and photo
 * upload consumer, the cron scheduler, and the HTTP router.
 *
 * @dependencies
 * - Go standard library: context, log, log/slog, net/http, os, os/signal, syscall, time
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/joho/godotenv: .env loading for local development.
 * - github.com/redis/go-redis/v9: login rate limiting.
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
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/onegen/bank-api/internal/api"
	"github.com/onegen/bank-api/internal/app"
	"github.com/onegen/bank-api/internal/config"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
	"github.com/onegen/bank-api/pkg/rabbitmq"
	"github.com/onegen/bank-api/pkg/storageclient"
)

const (
	serviceName         = "bank-api"
	photoUploadPrefetch = 4
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting service\" service=%s port=%s", serviceName, cfg.ServerPort)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(rootCtx, poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, time.Minute)
	if err := store.RunMigrations(migrateCtx, dbpool); err != nil {
		cancelMigrate()
		log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
	}
	cancelMigrate()

	repository := store.NewPostgresRepository(dbpool)

	var throttle app.LoginThrottle
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; login throttling disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; login throttling disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(rootCtx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; login throttling disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				throttle = app.NewRedisLoginThrottle(redisClient, cfg.RedisRateLimitPrefix, cfg.LoginRateLimitPerMinute, time.Minute)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewProducer(cfg.RabbitMQURL, serviceName)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; discarding messages\" url=%s err=%v", rabbitmq.RedactURL(cfg.RabbitMQURL), err)
		producer = &rabbitmq.DiscardPublisher{}
	} else {
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer producer.Close()

	mailer := app.NewQueueMailer(producer, cfg.SiteName)
	tokens := app.NewTokenIssuer(cfg.JWTSigningKey, cfg.AccessTokenLifetime, cfg.RefreshTokenLifetime)

	numbers, err := app.NewLuhnAccountNumberGenerator(cfg.BankCode, cfg.BranchCode, repository)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"account number generator misconfigured\" err=%v", err)
	}
	provisioner := app.NewAccountProvisioner(numbers)

	if strings.TrimSpace(cfg.StorageUploadURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"storage upload url missing; photo uploads will fail\" env=STORAGE_UPLOAD_URL")
	}
	uploadWorker := app.NewPhotoUploadWorker(
		repository,
		storageclient.NewClient(cfg.StorageUploadURL, cfg.StorageAPIKey),
		cfg.UploadMaxRetries,
		cfg.UploadRetryDelay,
	)

	// Photo jobs go through RabbitMQ when it is reachable and run in-process otherwise.
	var photoJobs app.PhotoJobQueue
	if rabbitProducer != nil {
		consumer, consumerErr := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if consumerErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", consumerErr)
		}
		defer consumer.Close()

		err := consumer.Subscribe(rootCtx, rabbitmq.Subscription{
			Exchange: domain.ProfileExchange,
			Queue:    domain.PhotoUploadQueue,
			Prefetch: photoUploadPrefetch,
			Routes: map[string]rabbitmq.Handler{
				domain.PhotoUploadRoutingKey: uploadWorker.HandleMessage,
			},
		})
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"photo upload consumer start failed\" err=%v", err)
		}
		// The consumer does not reconnect. If the broker drops it, later jobs run
		// in-process instead of piling up unconsumed.
		failover := app.NewFailoverPhotoJobs(app.NewQueuedPhotoJobs(producer), app.NewInlinePhotoJobs(rootCtx, uploadWorker))
		failover.FailOverWhenClosed(rootCtx, consumer.Closed())
		photoJobs = failover
	} else {
		log.Println("level=warn component=bootstrap msg=\"photo uploads running in-process\"")
		photoJobs = app.NewInlinePhotoJobs(rootCtx, uploadWorker)
	}

	authService := app.NewAuthService(repository, tokens, mailer, throttle, app.AuthConfig{
		LoginAttempts:   cfg.LoginAttempts,
		LockoutDuration: cfg.LockoutDuration,
		OTPExpiration:   cfg.OTPExpiration,
	})
	profileService := app.NewProfileService(repository, provisioner, photoJobs, mailer)
	accountService := app.NewAccountService(repository, mailer)

	uploadWorker.OnUploaded(func(ctx context.Context, profileID uuid.UUID) {
		if _, err := profileService.ReconcileProvisioning(ctx, profileID); err != nil {
			log.Printf("level=error component=bootstrap msg=\"provisioning after upload failed\" profile_id=%s err=%v", profileID, err)
		}
	})

	jobs := app.NewJobs(authService, cfg.UploadTempDir, logger)
	scheduler := app.NewScheduler(logger, jobs.Tasks(app.ScheduleConfig{
		OTPCleanup:  cfg.OTPCleanupSchedule,
		UploadSweep: cfg.UploadSweepSchedule,
	}))
	logger.Info("scheduler started", "jobs", scheduler.Start())

	handlers := api.NewHandlers(authService, profileService, accountService, api.CookieConfig{
		Path:     cfg.CookiePath,
		Secure:   cfg.CookieSecure,
		SameSite: api.ParseSameSite(cfg.CookieSameSite),
	}, cfg.UploadTempDir)
	router := api.NewRouter(handlers, tokens, cfg.AllowedOrigins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		log.Println("level=warn component=scheduler msg=\"jobs still running at shutdown\"")
	}
	cancelRoot()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
