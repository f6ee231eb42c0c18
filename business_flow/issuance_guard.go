package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/repository"
	"github.com/amirphl/Kiriban/utils"
	"github.com/redis/go-redis/v9"
)

// IssuanceGuard is the exclusive, keyed claim on one milestone issuance.
// Acquire succeeds for exactly one caller per (counterID, count) until the
// claim is released; a completed claim is never released.
type IssuanceGuard interface {
	Acquire(ctx context.Context, counterID string, count int64, ownerID string) (bool, error)
	Complete(ctx context.Context, counterID string, count int64, tokenID string) error
	Release(ctx context.Context, counterID string, count int64) error
}

// DBIssuanceGuard keeps guards as issuance_records rows
type DBIssuanceGuard struct {
	repo repository.IssuanceRecordRepository
}

func NewDBIssuanceGuard(repo repository.IssuanceRecordRepository) *DBIssuanceGuard {
	return &DBIssuanceGuard{repo: repo}
}

func (g *DBIssuanceGuard) Acquire(ctx context.Context, counterID string, count int64, ownerID string) (bool, error) {
	return g.repo.Acquire(ctx, counterID, count, ownerID)
}

func (g *DBIssuanceGuard) Complete(ctx context.Context, counterID string, count int64, tokenID string) error {
	return g.repo.MarkIssued(ctx, counterID, count, tokenID)
}

func (g *DBIssuanceGuard) Release(ctx context.Context, counterID string, count int64) error {
	return g.repo.Release(ctx, counterID, count)
}

// Settled reports whether the guard for the key is issued or orphaned.
// Neither state is ever released.
func (g *DBIssuanceGuard) Settled(ctx context.Context, counterID string, count int64) (bool, error) {
	rec, err := g.repo.ByKey(ctx, counterID, count)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status != models.IssuanceStatusPending, nil
}

// settledGuard is implemented by guards that can tell a terminal claim
// apart from a pending one
type settledGuard interface {
	Settled(ctx context.Context, counterID string, count int64) (bool, error)
}

const (
	redisGuardPending = "pending"
	redisGuardIssued  = "issued"
)

// releasePending deletes the key only while it still marks a pending claim
var releasePending = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisIssuanceGuard claims the key with SETNX before touching the durable
// guard, so duplicate bursts from many instances are rejected in Redis.
// The durable guard stays the record of truth.
type RedisIssuanceGuard struct {
	rc         *redis.Client
	cfg        config.CacheConfig
	next       IssuanceGuard
	pendingTTL time.Duration
}

func NewRedisIssuanceGuard(rc *redis.Client, cfg config.CacheConfig, next IssuanceGuard, pendingTTL time.Duration) *RedisIssuanceGuard {
	if pendingTTL <= 0 {
		pendingTTL = 2 * utils.DefaultIssuanceTimeout
	}
	return &RedisIssuanceGuard{rc: rc, cfg: cfg, next: next, pendingTTL: pendingTTL}
}

func (g *RedisIssuanceGuard) key(counterID string, count int64) string {
	return redisKey(g.cfg, utils.IssuanceGuardKey, counterID, fmt.Sprintf("%d", count))
}

func (g *RedisIssuanceGuard) Acquire(ctx context.Context, counterID string, count int64, ownerID string) (bool, error) {
	key := g.key(counterID, count)
	ok, err := g.rc.SetNX(ctx, key, redisGuardPending, g.pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim redis guard %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	acquired, err := g.next.Acquire(ctx, counterID, count, ownerID)
	if err != nil {
		_ = releasePending.Run(context.WithoutCancel(ctx), g.rc, []string{key}, redisGuardPending).Err()
		return false, err
	}
	if !acquired {
		// A pending durable holder may still release, so only a settled
		// guard keeps the redis claim.
		if g.settled(ctx, counterID, count) {
			_ = g.rc.Set(ctx, key, redisGuardIssued, 0).Err()
		} else {
			_ = releasePending.Run(context.WithoutCancel(ctx), g.rc, []string{key}, redisGuardPending).Err()
		}
	}
	return acquired, nil
}

func (g *RedisIssuanceGuard) settled(ctx context.Context, counterID string, count int64) bool {
	sg, ok := g.next.(settledGuard)
	if !ok {
		return false
	}
	done, err := sg.Settled(ctx, counterID, count)
	return err == nil && done
}

func (g *RedisIssuanceGuard) Complete(ctx context.Context, counterID string, count int64, tokenID string) error {
	if err := g.next.Complete(ctx, counterID, count, tokenID); err != nil {
		return err
	}
	if err := g.rc.Set(ctx, g.key(counterID, count), redisGuardIssued, 0).Err(); err != nil {
		return fmt.Errorf("failed to mark redis guard issued: %w", err)
	}
	return nil
}

func (g *RedisIssuanceGuard) Release(ctx context.Context, counterID string, count int64) error {
	if err := g.next.Release(ctx, counterID, count); err != nil {
		return err
	}
	key := g.key(counterID, count)
	if err := releasePending.Run(ctx, g.rc, []string{key}, redisGuardPending).Err(); err != nil {
		return fmt.Errorf("failed to release redis guard %s: %w", key, err)
	}
	return nil
}

// redisKey joins the configured prefix and key parts
func redisKey(cfg config.CacheConfig, parts ...string) string {
	key := cfg.RedisPrefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}
