package businessflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/utils"
)

// ChainLocker serializes chain-advance operations per (broadcast, contact).
// Enrollment, resume, and dispatch-completion scheduling for the same contact
// must never run concurrently; whoever fails to take the lock skips and lets
// the owning operation (or the next poll cycle) produce the queue rows.
type ChainLocker interface {
	// TryLock returns a release function when the lock was taken. ok is
	// false when another holder owns the lock.
	TryLock(ctx context.Context, broadcastID, contactID uint) (release func(), ok bool, err error)
}

// ContactChainLocks implements ChainLocker on redis (SETNX with TTL) so the
// guarantee holds across processes. Without a redis client it degrades to a
// process-local lock table.
type ContactChainLocks struct {
	rc          *redis.Client
	cacheConfig *config.CacheConfig

	mu    sync.Mutex
	local map[string]struct{}
}

// NewContactChainLocks creates a chain lock table. rc may be nil.
func NewContactChainLocks(rc *redis.Client, cacheConfig *config.CacheConfig) *ContactChainLocks {
	return &ContactChainLocks{
		rc:          rc,
		cacheConfig: cacheConfig,
		local:       make(map[string]struct{}),
	}
}

func chainLockKey(broadcastID, contactID uint) string {
	return fmt.Sprintf("chain_lock:%d:%d", broadcastID, contactID)
}

// TryLock acquires the per-contact chain lock without blocking
func (l *ContactChainLocks) TryLock(ctx context.Context, broadcastID, contactID uint) (func(), bool, error) {
	key := chainLockKey(broadcastID, contactID)

	if l.rc == nil {
		return l.tryLockLocal(key)
	}

	rkey := redisKey(*l.cacheConfig, key)
	ok, err := l.rc.SetNX(ctx, rkey, "1", utils.ContactLockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire chain lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		_ = l.rc.Del(context.Background(), rkey).Err()
	}
	return release, true, nil
}

func (l *ContactChainLocks) tryLockLocal(key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.local[key]; held {
		return nil, false, nil
	}
	l.local[key] = struct{}{}

	release := func() {
		l.mu.Lock()
		delete(l.local, key)
		l.mu.Unlock()
	}
	return release, true, nil
}
