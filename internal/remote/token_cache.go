package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/brightpath-io/activity-sync/pkg/logger"
	"github.com/brightpath-io/activity-sync/pkg/redis"
)

// AuthFunc performs the remote login and returns a fresh token.
type AuthFunc func(ctx context.Context) (Token, error)

// TokenCache shares one access token across all concurrent callers. Reads
// hit Redis; refreshes collapse into a single remote login per scope via
// singleflight, so a burst of simultaneous cache misses costs one
// authentication call instead of one per caller.
type TokenCache struct {
	store        redis.TokenStore
	safetyMargin time.Duration
	logger       *logger.Logger
	group        singleflight.Group
	now          func() time.Time
}

// NewTokenCache builds the shared token cache.
func NewTokenCache(store redis.TokenStore, safetyMargin time.Duration, logg *logger.Logger) (*TokenCache, error) {
	if store == nil {
		return nil, fmt.Errorf("token store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if safetyMargin <= 0 {
		safetyMargin = 5 * time.Minute
	}
	return &TokenCache{
		store:        store,
		safetyMargin: safetyMargin,
		logger:       logg,
		now:          time.Now,
	}, nil
}

// GetOrRefresh returns a live token for the scope, authenticating only on a
// miss or when the cached token is inside the safety margin.
func (c *TokenCache) GetOrRefresh(ctx context.Context, scope string, auth AuthFunc) (Token, error) {
	if cached, ok := c.lookup(ctx, scope); ok {
		return cached, nil
	}

	value, err, _ := c.group.Do(scope, func() (any, error) {
		// Re-check under the flight: the winner of a concurrent miss may
		// already have refreshed by the time we run.
		if cached, ok := c.lookup(ctx, scope); ok {
			return cached, nil
		}

		token, err := auth(ctx)
		if err != nil {
			return Token{}, err
		}
		if token.ExpiresAt.IsZero() {
			token.ExpiresAt = expiryFromClaims(token.AccessToken, c.now())
		}

		ttl := token.ExpiresAt.Sub(c.now()) - c.safetyMargin
		if ttl <= 0 {
			// Token expires inside the margin; usable for this call but
			// not worth caching.
			c.logger.Warn(ctx, "remote token expires within safety margin, not cached")
			return token, nil
		}
		payload, err := json.Marshal(token)
		if err != nil {
			return Token{}, err
		}
		if err := c.store.Set(ctx, c.store.TokenKey(scope), payload, ttl); err != nil {
			c.logger.Error(ctx, "caching remote token", err)
		}
		return token, nil
	})
	if err != nil {
		return Token{}, err
	}
	return value.(Token), nil
}

// Invalidate drops the cached token so the next caller re-authenticates,
// used after the remote side rejects a token that should still be live.
func (c *TokenCache) Invalidate(ctx context.Context, scope string) {
	if err := c.store.Del(ctx, c.store.TokenKey(scope)); err != nil {
		c.logger.Error(ctx, "invalidating remote token", err)
	}
}

func (c *TokenCache) lookup(ctx context.Context, scope string) (Token, bool) {
	raw, err := c.store.Get(ctx, c.store.TokenKey(scope))
	if err != nil {
		if err != redis.Nil {
			c.logger.Error(ctx, "reading token cache", err)
		}
		return Token{}, false
	}
	var token Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		c.logger.Error(ctx, "decoding cached token", err)
		return Token{}, false
	}
	if !token.LiveWithin(c.safetyMargin, c.now()) {
		return Token{}, false
	}
	return token, true
}

// expiryFromClaims recovers the expiry from the token's exp claim when the
// login response omits expiresAt. The signature is not verified; only the
// expiry matters here and the token came straight from the issuer.
func expiryFromClaims(accessToken string, now time.Time) time.Time {
	fallback := now.Add(30 * time.Minute)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}
