package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/adscale/internal/adplatform"
	"github.com/ignite/adscale/internal/api"
	"github.com/ignite/adscale/internal/config"
	"github.com/ignite/adscale/internal/engine"
	"github.com/ignite/adscale/internal/metrics"
	"github.com/ignite/adscale/internal/pkg/distlock"
	"github.com/ignite/adscale/internal/pkg/logger"
	"github.com/ignite/adscale/internal/repository/postgres"
	"github.com/ignite/adscale/internal/service/autoscale"
	"github.com/ignite/adscale/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("AdScale server starting (cmd/server)")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	// Postgres
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	cancelPing()
	defer db.Close()

	// Redis (optional)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable (%v), falling back to PG advisory locks and uncached metrics", err)
			redisClient = nil
		}
	}

	// Repositories
	ruleRepo := postgres.NewRuleRepo(db)
	assetRepo := postgres.NewAssetRepo(db)
	historyRepo := postgres.NewHistoryRepo(db)
	resetRepo := postgres.NewResetRepo(db)
	productRepo := postgres.NewProductRepo(db)

	// Metrics provider, cached when Redis is present
	var provider metrics.Provider = metrics.NewPostgresProvider(db)
	var budgets autoscale.BudgetReader = metrics.NoCacheBudgets{Provider: provider}
	if redisClient != nil {
		cached := metrics.NewCachedProvider(provider, redisClient, cfg.Metrics.CacheTTL())
		provider = cached
		budgets = cached
	}

	// Ad platform gateway
	platform := adplatform.NewHTTPClient(cfg.Platform.BaseURL, cfg.Platform.APIToken, nil)
	log.Printf("Platform gateway: %s (token %s)", cfg.Platform.BaseURL, logger.RedactToken(cfg.Platform.APIToken))

	// Engine
	executor := engine.NewExecutor(platform, assetRepo, historyRepo, productRepo, provider)
	lockFor := func(assetID string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, "adscale:asset:"+assetID, cfg.Engine.LockTTL())
	}
	eng := engine.New(ruleRepo, assetRepo, provider, executor, lockFor)
	eng.RecordNoMatch = cfg.Engine.RecordNoMatch

	// Service + API
	svc := autoscale.NewService(ruleRepo, assetRepo, historyRepo, resetRepo, budgets, eng, executor)
	handlers := api.NewHandlers(svc)

	// S3 client for the history archive (optional)
	var s3Client *s3.Client
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Archive.S3Region),
		}
		if profile := cfg.Archive.GetAWSProfile(); profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			log.Printf("AWS config load failed (%v), history archiving disabled", err)
		} else {
			s3Client = s3.NewFromConfig(awsCfg)
		}
	}

	hc := api.NewHealthChecker(db, redisClient, s3Client, cfg.Archive.S3Bucket)
	server := api.NewServer(handlers, hc)

	// Workers
	scheduler := worker.NewEngineScheduler(eng, db, cfg.Engine.Interval())
	scheduler.SetRedisClient(redisClient)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start engine scheduler: %v", err)
	}

	var resetWorker *worker.BudgetResetWorker
	if cfg.Reset.Enabled {
		resetWorker = worker.NewBudgetResetWorker(assetRepo, resetRepo, platform)
		resetWorker.SetPollInterval(cfg.Reset.PollInterval())
		if err := resetWorker.Start(); err != nil {
			log.Fatalf("Failed to start budget reset worker: %v", err)
		}
	}

	var archiver *worker.HistoryArchiver
	if s3Client != nil {
		archiver = worker.NewHistoryArchiver(historyRepo, s3Client, cfg.Archive.S3Bucket, cfg.Archive.Retention())
		if err := archiver.Start(); err != nil {
			log.Fatalf("Failed to start history archiver: %v", err)
		}
	}

	// Serve
	addr := fmt.Sprintf("%s:%d", host, port)
	go func() {
		log.Printf("API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("API server stopped: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}
	scheduler.Stop()
	if resetWorker != nil {
		resetWorker.Stop()
	}
	if archiver != nil {
		archiver.Stop()
	}
	log.Println("Shutdown complete")
}
