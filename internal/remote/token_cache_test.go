package remote

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brightpath-io/activity-sync/pkg/logger"
	"github.com/brightpath-io/activity-sync/pkg/redis"
)

type memoryTokenStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memoryTokenStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *memoryTokenStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		s.values[key] = string(v)
	case string:
		s.values[key] = v
	}
	s.ttls[key] = ttl
	return nil
}

func (s *memoryTokenStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.ttls, key)
	}
	return nil
}

func (s *memoryTokenStore) TokenKey(scope string) string { return "token:" + scope }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: logger.ParseLevel("error")})
}

func TestTokenCacheConcurrentMissesAuthenticateOnce(t *testing.T) {
	store := newMemoryTokenStore()
	cache, err := NewTokenCache(store, 5*time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	var calls int32
	auth := func(ctx context.Context) (Token, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return Token{AccessToken: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.GetOrRefresh(context.Background(), "cfg", auth)
			if err != nil {
				t.Errorf("GetOrRefresh: %v", err)
				return
			}
			if token.AccessToken != "tok-1" {
				t.Errorf("unexpected token %q", token.AccessToken)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 authentication call, got %d", got)
	}
}

func TestTokenCacheReusesLiveToken(t *testing.T) {
	store := newMemoryTokenStore()
	cache, err := NewTokenCache(store, 5*time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	var calls int
	auth := func(ctx context.Context) (Token, error) {
		calls++
		return Token{AccessToken: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrRefresh(context.Background(), "cfg", auth); err != nil {
			t.Fatalf("GetOrRefresh: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cached reuse after first login, got %d calls", calls)
	}

	ttl := store.ttls[store.TokenKey("cfg")]
	if ttl <= 0 || ttl > time.Hour-5*time.Minute {
		t.Fatalf("expected ttl shortened by the safety margin, got %s", ttl)
	}
}

func TestTokenCacheRefreshesInsideSafetyMargin(t *testing.T) {
	store := newMemoryTokenStore()
	cache, err := NewTokenCache(store, 5*time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	// Seed a token that expires in 2 minutes; with a 5 minute margin the
	// next caller must re-authenticate instead of reusing it.
	stale := Token{AccessToken: "stale", ExpiresAt: time.Now().Add(2 * time.Minute)}
	if err := store.Set(context.Background(), store.TokenKey("cfg"), mustJSON(t, stale), time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}

	auth := func(ctx context.Context) (Token, error) {
		return Token{AccessToken: "fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	token, err := cache.GetOrRefresh(context.Background(), "cfg", auth)
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if token.AccessToken != "fresh" {
		t.Fatalf("expected refreshed token, got %q", token.AccessToken)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	store := newMemoryTokenStore()
	cache, err := NewTokenCache(store, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	var calls int
	auth := func(ctx context.Context) (Token, error) {
		calls++
		return Token{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	if _, err := cache.GetOrRefresh(context.Background(), "cfg", auth); err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	cache.Invalidate(context.Background(), "cfg")
	if _, err := cache.GetOrRefresh(context.Background(), "cfg", auth); err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected re-authentication after invalidate, got %d calls", calls)
	}
}

func mustJSON(t *testing.T, token Token) []byte {
	t.Helper()
	payload, err := json.Marshal(token)
	if err != nil {
		t.Fatalf("marshal token: %v", err)
	}
	return payload
}
