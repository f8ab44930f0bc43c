package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/adscale/internal/engine"
	"github.com/ignite/adscale/internal/pkg/distlock"
	"github.com/redis/go-redis/v9"
)

// DefaultEngineInterval is how often the scheduler runs an engine pass.
const DefaultEngineInterval = 5 * time.Minute

// EngineScheduler drives periodic rule evaluation. Every interval it takes a
// global distributed lock and runs one engine pass over all users' active
// rules, so at most one instance evaluates at a time no matter how many
// replicas are deployed.
type EngineScheduler struct {
	eng         *engine.Engine
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	workerID    string
	interval    time.Duration

	// Stats
	passes          int64
	rulesProcessed  int64
	actionsExecuted int64
	errors          int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewEngineScheduler creates the engine scheduler.
func NewEngineScheduler(eng *engine.Engine, db *sql.DB, interval time.Duration) *EngineScheduler {
	if interval <= 0 {
		interval = DefaultEngineInterval
	}
	return &EngineScheduler{
		eng:      eng,
		db:       db,
		workerID: fmt.Sprintf("engine-%s-%d", getHostname(), time.Now().UnixNano()%10000),
		interval: interval,
	}
}

// SetRedisClient sets the Redis client for distributed locking.
// If set, the scheduler uses Redis-based locks; otherwise it falls back
// to PostgreSQL advisory locks.
func (es *EngineScheduler) SetRedisClient(client *redis.Client) {
	es.redisClient = client
}

// Start begins the scheduler loop.
func (es *EngineScheduler) Start() error {
	es.mu.Lock()
	if es.running {
		es.mu.Unlock()
		return fmt.Errorf("engine scheduler already running")
	}
	es.running = true
	es.ctx, es.cancel = context.WithCancel(context.Background())
	es.mu.Unlock()

	log.Printf("[EngineScheduler] Starting with interval: %v", es.interval)

	es.wg.Add(1)
	go es.loop()
	return nil
}

// Stop gracefully stops the scheduler, letting an in-flight pass finish.
func (es *EngineScheduler) Stop() {
	es.mu.Lock()
	if !es.running {
		es.mu.Unlock()
		return
	}
	es.running = false
	es.mu.Unlock()

	log.Printf("[EngineScheduler] Stopping...")
	es.cancel()
	es.wg.Wait()
	log.Printf("[EngineScheduler] Stopped. Passes: %d, Rules: %d, Actions: %d, Errors: %d",
		atomic.LoadInt64(&es.passes), atomic.LoadInt64(&es.rulesProcessed),
		atomic.LoadInt64(&es.actionsExecuted), atomic.LoadInt64(&es.errors))
}

func (es *EngineScheduler) loop() {
	defer es.wg.Done()

	ticker := time.NewTicker(es.interval)
	defer ticker.Stop()

	// First pass right away; a fresh deploy should not wait a full interval.
	es.RunOnce(es.ctx)

	for {
		select {
		case <-es.ctx.Done():
			return
		case <-ticker.C:
			es.RunOnce(es.ctx)
		}
	}
}

// RunOnce executes a single locked engine pass. Exposed for the one-shot
// cron binary, which runs it and exits.
func (es *EngineScheduler) RunOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, es.interval)
	defer cancel()

	// The lock TTL outlives the pass deadline so a crashed holder expires.
	lock := distlock.NewLock(es.redisClient, es.db, "adscale:engine-run", es.interval+time.Minute)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[EngineScheduler] Error acquiring run lock: %v", err)
		atomic.AddInt64(&es.errors, 1)
		return
	}
	if !acquired {
		log.Printf("[EngineScheduler] Pass already running on another instance, skipping")
		return
	}
	defer lock.Release(context.WithoutCancel(ctx))

	summary, err := es.eng.ProcessRules(ctx, "")
	if err != nil {
		log.Printf("[EngineScheduler] Engine pass failed: %v", err)
		atomic.AddInt64(&es.errors, 1)
		return
	}

	atomic.AddInt64(&es.passes, 1)
	atomic.AddInt64(&es.rulesProcessed, int64(summary.RulesProcessed))
	atomic.AddInt64(&es.actionsExecuted, int64(summary.ActionsExecuted))
	if !summary.Success {
		atomic.AddInt64(&es.errors, int64(len(summary.Errors)))
	}
}

// getHostname returns the hostname for worker identification.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
