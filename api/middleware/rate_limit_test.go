package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{counts: map[string]int64{}}
}

func (f *fakeRateLimitStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	store := newFakeRateLimitStore()
	policy := NewRateLimitPolicy("api", time.Minute, 2)
	calls := 0
	handler := RateLimit(policy, store, middlewareTestLogger())(okHandler(&calls))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	req = req.WithContext(WithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestRateLimitCountsPerSubject(t *testing.T) {
	store := newFakeRateLimitStore()
	policy := NewRateLimitPolicy("api", time.Minute, 1)
	calls := 0
	handler := RateLimit(policy, store, middlewareTestLogger())(okHandler(&calls))

	for _, user := range []string{"user-1", "user-2"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
		req = req.WithContext(WithUserID(req.Context(), user))
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "each user has an independent window")
	}
	assert.Equal(t, 2, calls)
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	store := newFakeRateLimitStore()
	policy := NewRateLimitPolicy("public", time.Minute, 1)
	calls := 0
	handler := RateLimit(policy, store, middlewareTestLogger())(okHandler(&calls))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, counted := store.counts["rl:public:203.0.113.9"]
	assert.True(t, counted, "anonymous traffic is keyed by the first forwarded address")
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := newFakeRateLimitStore()
	store.err = errors.New("redis down")
	policy := NewRateLimitPolicy("api", time.Minute, 5)
	calls := 0
	handler := RateLimit(policy, store, middlewareTestLogger())(okHandler(&calls))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	req = req.WithContext(WithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, calls)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	calls := 0
	handler := RateLimit(NewRateLimitPolicy("off", 0, 0), newFakeRateLimitStore(), middlewareTestLogger())(okHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}
