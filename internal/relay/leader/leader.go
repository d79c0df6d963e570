// Package leader provides Redis-backed distributed leader election, so a
// fleet of relayqueue processes agrees on exactly one instance driving
// singleton work (periodic secret sync, the SQS bridge consumer, etc.).
package leader

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"go.relayqueue.dev/internal/common/metrics"
)

// Config configures a RedisElector.
type Config struct {
	LockName        string
	TTL             time.Duration
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults for a given lock name.
func DefaultConfig(lockName string) Config {
	return Config{
		LockName:        lockName,
		TTL:             15 * time.Second,
		RefreshInterval: 5 * time.Second,
	}
}

// RedisElector holds (or contends for) a single distributed lock via
// Redis SET NX PX, refreshed on an interval well inside the lock's TTL.
type RedisElector struct {
	client *redis.Client
	cfg    Config
	id     string

	mu          sync.Mutex
	isLeader    bool
	onBecome    func()
	onLose      func()
	cancelRun   context.CancelFunc
	runDone     chan struct{}
}

// New builds a RedisElector. client must already be connected.
func New(client *redis.Client, cfg Config) *RedisElector {
	return &RedisElector{
		client:  client,
		cfg:     cfg,
		id:      uuid.NewString(),
		runDone: make(chan struct{}),
	}
}

// OnBecomeLeader registers a callback invoked (on its own goroutine) the
// moment this instance acquires the lock.
func (e *RedisElector) OnBecomeLeader(f func()) { e.onBecome = f }

// OnLoseLeadership registers a callback invoked when this instance either
// fails to refresh the lock in time or explicitly releases it.
func (e *RedisElector) OnLoseLeadership(f func()) { e.onLose = f }

// IsPrimary reports whether this instance currently believes it holds the
// lock.
func (e *RedisElector) IsPrimary() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// Start begins contending for the lock in the background. Returns once the
// first acquisition attempt has completed (leader or not); subsequent
// attempts continue until Stop or ctx is cancelled.
func (e *RedisElector) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelRun = cancel
	e.mu.Unlock()

	e.tryAcquireOrRefresh(runCtx)

	go func() {
		defer close(e.runDone)
		ticker := time.NewTicker(e.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				e.release(context.Background())
				return
			case <-ticker.C:
				e.tryAcquireOrRefresh(runCtx)
			}
		}
	}()

	return nil
}

// Stop releases the lock if held and stops the refresh loop.
func (e *RedisElector) Stop() {
	e.mu.Lock()
	cancel := e.cancelRun
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-e.runDone
	}
}

func (e *RedisElector) tryAcquireOrRefresh(ctx context.Context) {
	var ok bool
	var err error

	e.mu.Lock()
	wasLeader := e.isLeader
	e.mu.Unlock()

	if wasLeader {
		// Refresh: only extend the TTL if we still hold it.
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("pexpire", KEYS[1], ARGV[2])
			end
			return 0
		`)
		var res interface{}
		res, err = script.Run(ctx, e.client, []string{e.cfg.LockName}, e.id, e.cfg.TTL.Milliseconds()).Result()
		ok = err == nil && res != nil && res != int64(0)
	} else {
		ok, err = e.client.SetNX(ctx, e.cfg.LockName, e.id, e.cfg.TTL).Result()
	}

	if err != nil {
		log.Error().Err(err).Str("lock", e.cfg.LockName).Msg("leader election: redis error")
		ok = false
	}

	e.mu.Lock()
	becameLeader := ok && !e.isLeader
	lostLeader := !ok && e.isLeader
	e.isLeader = ok
	onBecome, onLose := e.onBecome, e.onLose
	e.mu.Unlock()

	metrics.LeaderElectionState.Set(boolToFloat(ok))

	if becameLeader && onBecome != nil {
		go onBecome()
	}
	if lostLeader && onLose != nil {
		go onLose()
	}
}

func (e *RedisElector) release(ctx context.Context) {
	e.mu.Lock()
	wasLeader := e.isLeader
	e.isLeader = false
	onLose := e.onLose
	e.mu.Unlock()

	if wasLeader {
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`)
		script.Run(ctx, e.client, []string{e.cfg.LockName}, e.id)
		metrics.LeaderElectionState.Set(0)
		if onLose != nil {
			onLose()
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
