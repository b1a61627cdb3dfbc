package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// Ledger records tokens revoked before their natural expiry.
type Ledger interface {
	// Revoke fails with ErrTokenAlreadyRevoked on a duplicate entry.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// revokeToken treats a duplicate entry as success.
func revokeToken(ctx context.Context, ledger Ledger, token string, expiresAt time.Time) error {
	if token == "" {
		return nil
	}
	if err := ledger.Revoke(ctx, token, expiresAt); err != nil && !errors.Is(err, ErrTokenAlreadyRevoked) {
		return err
	}
	return nil
}

// TokenDigest is the hex sha256 of token. Ledgers only ever store digests.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BlacklistRepository is the durable ledger stored in the database.
type BlacklistRepository struct {
	db  bun.IDB
	now func() time.Time
}

var _ Ledger = (*BlacklistRepository)(nil)

// NewBlacklistRepository returns a Ledger backed by the blacklisted_tokens
// table.
func NewBlacklistRepository(db bun.IDB) *BlacklistRepository {
	return &BlacklistRepository{db: db, now: utcNow}
}

func (r *BlacklistRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	now := r.now()
	record := &BlacklistedToken{
		ID:        uuid.New(),
		Token:     TokenDigest(token),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: &now,
	}

	res, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (token) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke token")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTokenAlreadyRevoked
	}
	return nil
}

func (r *BlacklistRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*BlacklistedToken)(nil)).
		Where("token = ?", TokenDigest(token)).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token revocation")
	}
	return exists, nil
}

func (r *BlacklistRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*BlacklistedToken)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge blacklisted tokens")
	}
	return res.RowsAffected()
}

// RedisLedger keeps revoked tokens in redis until they expire.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger returns a ledger storing keys under prefix.
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "auth:blacklist:"
	}
	return &RedisLedger{client: client, prefix: prefix, now: utcNow}
}

// WithClock overrides the time source used to compute key TTLs.
func (r *RedisLedger) WithClock(now func() time.Time) *RedisLedger {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *RedisLedger) key(token string) string {
	return r.prefix + TokenDigest(token)
}

func (r *RedisLedger) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	ok, err := r.client.SetNX(ctx, r.key(token), 1, ttl).Result()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to cache revoked token")
	}
	if !ok {
		return ErrTokenAlreadyRevoked
	}
	return nil
}

func (r *RedisLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read revoked token cache")
	}
	return n > 0, nil
}

// PurgeExpired is a no-op, keys carry their own TTL.
func (r *RedisLedger) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// CachedLedger writes through to a durable ledger and answers lookups from
// a cache first. Cache failures are logged and fall back to the durable
// ledger.
type CachedLedger struct {
	durable Ledger
	cache   Ledger
	logger  Logger
}

var _ Ledger = (*CachedLedger)(nil)

// NewCachedLedger combines durable storage with a cache.
func NewCachedLedger(durable, cache Ledger) *CachedLedger {
	return &CachedLedger{durable: durable, cache: cache, logger: defLogger{}}
}

func (c *CachedLedger) WithLogger(l Logger) *CachedLedger {
	c.logger = normalizeLogger(l)
	return c
}

func (c *CachedLedger) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	durableErr := c.durable.Revoke(ctx, token, expiresAt)
	if durableErr != nil && !errors.Is(durableErr, ErrTokenAlreadyRevoked) {
		return durableErr
	}

	if err := c.cache.Revoke(ctx, token, expiresAt); err != nil && !errors.Is(err, ErrTokenAlreadyRevoked) {
		c.logger.Warn("failed to cache revoked token", "error", err)
	}

	return durableErr
}

func (c *CachedLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := c.cache.IsRevoked(ctx, token)
	if err != nil {
		c.logger.Warn("revoked token cache unavailable", "error", err)
	} else if revoked {
		return true, nil
	}
	return c.durable.IsRevoked(ctx, token)
}

func (c *CachedLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.durable.PurgeExpired(ctx, now)
}
