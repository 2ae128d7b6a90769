package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "smartlib:token:blacklist:"

// Blacklist invalidates refresh tokens before their natural expiry.
// Entries live in Redis only as long as the token itself would.
type Blacklist struct {
	client redis.UniversalClient
	secret string
}

func NewBlacklist(client redis.UniversalClient, secret string) *Blacklist {
	return &Blacklist{client: client, secret: secret}
}

func (b *Blacklist) Revoke(ctx context.Context, tokenString string) error {
	claims, err := Parse(tokenString, b.secret)
	if err != nil {
		return err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		// already expired, nothing to revoke
		return nil
	}

	return b.client.Set(ctx, blacklistPrefix+claims.ID, 1, ttl).Err()
}

func (b *Blacklist) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistPrefix+claims.ID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
