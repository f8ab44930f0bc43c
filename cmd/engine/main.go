// Command engine runs a single rule evaluation pass and exits. It exists for
// cron-style deployments that prefer an external scheduler over the long-lived
// loop inside cmd/server.
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/ignite/adscale/internal/adplatform"
	"github.com/ignite/adscale/internal/config"
	"github.com/ignite/adscale/internal/engine"
	"github.com/ignite/adscale/internal/metrics"
	"github.com/ignite/adscale/internal/pkg/distlock"
	"github.com/ignite/adscale/internal/repository/postgres"
	"github.com/ignite/adscale/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	cancelPing()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable (%v), falling back to PG advisory locks", err)
			redisClient = nil
		}
	}

	ruleRepo := postgres.NewRuleRepo(db)
	assetRepo := postgres.NewAssetRepo(db)
	historyRepo := postgres.NewHistoryRepo(db)
	productRepo := postgres.NewProductRepo(db)

	var provider metrics.Provider = metrics.NewPostgresProvider(db)
	if redisClient != nil {
		provider = metrics.NewCachedProvider(provider, redisClient, cfg.Metrics.CacheTTL())
	}

	platform := adplatform.NewHTTPClient(cfg.Platform.BaseURL, cfg.Platform.APIToken, nil)
	executor := engine.NewExecutor(platform, assetRepo, historyRepo, productRepo, provider)
	lockFor := func(assetID string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, "adscale:asset:"+assetID, cfg.Engine.LockTTL())
	}
	eng := engine.New(ruleRepo, assetRepo, provider, executor, lockFor)
	eng.RecordNoMatch = cfg.Engine.RecordNoMatch

	scheduler := worker.NewEngineScheduler(eng, db, cfg.Engine.Interval())
	scheduler.SetRedisClient(redisClient)
	scheduler.RunOnce(context.Background())
}
