package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// --- TokenBucketLimiter Tests ---

func TestTokenBucketLimiter_Allow(t *testing.T) {
	limiter := NewTokenBucketLimiter(10, 10, 0)
	defer limiter.Stop()

	allowed, info := limiter.Allow("test-key")
	assert.True(t, allowed)
	assert.Equal(t, 10, info.Limit)
	assert.True(t, info.Remaining >= 0)
}

func TestTokenBucketLimiter_Burst(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 5, 0) // 1 req/s, burst of 5
	defer limiter.Stop()

	// Should allow 5 requests in burst
	for i := 0; i < 5; i++ {
		allowed, _ := limiter.Allow("burst-key")
		assert.True(t, allowed, "request %d should be allowed", i)
	}

	// 6th should be rejected
	allowed, info := limiter.Allow("burst-key")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
}

func TestTokenBucketLimiter_Exceeded(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 2, 0)
	defer limiter.Stop()

	limiter.Allow("exceed-key")
	limiter.Allow("exceed-key")

	allowed, _ := limiter.Allow("exceed-key")
	assert.False(t, allowed)
}

func TestTokenBucketLimiter_Refill(t *testing.T) {
	limiter := NewTokenBucketLimiter(100, 2, 0) // 100 req/s for fast refill
	defer limiter.Stop()

	// Exhaust tokens
	limiter.Allow("refill-key")
	limiter.Allow("refill-key")

	allowed, _ := limiter.Allow("refill-key")
	assert.False(t, allowed)

	// Wait for refill
	time.Sleep(50 * time.Millisecond)

	allowed, _ = limiter.Allow("refill-key")
	assert.True(t, allowed)
}

func TestTokenBucketLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewTokenBucketLimiter(1000, 100, 0)
	defer limiter.Stop()

	var wg sync.WaitGroup
	var allowedCount int64

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _ := limiter.Allow("concurrent-key")
			if allowed {
				atomic.AddInt64(&allowedCount, 1)
			}
		}()
	}

	wg.Wait()

	// At most burstSize (100) should be allowed initially
	assert.True(t, allowedCount <= 100, "allowed %d, expected <= 100", allowedCount)
	assert.True(t, allowedCount > 0, "at least some requests should be allowed")
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	limiter := NewTokenBucketLimiter(10, 10, 50*time.Millisecond)
	defer limiter.Stop()

	limiter.Allow("cleanup-key-1")
	limiter.Allow("cleanup-key-2")

	assert.Equal(t, 2, limiter.BucketCount())

	// Wait for cleanup
	time.Sleep(200 * time.Millisecond)

	// Buckets should be cleaned up (they're nearly full and idle)
	assert.True(t, limiter.BucketCount() <= 2) // may or may not be cleaned depending on timing
}

func TestTokenBucketLimiter_BucketCount(t *testing.T) {
	limiter := NewTokenBucketLimiter(10, 10, 0)
	defer limiter.Stop()

	assert.Equal(t, 0, limiter.BucketCount())

	limiter.Allow("key-a")
	assert.Equal(t, 1, limiter.BucketCount())

	limiter.Allow("key-b")
	assert.Equal(t, 2, limiter.BucketCount())

	// Same key doesn't create new bucket
	limiter.Allow("key-a")
	assert.Equal(t, 2, limiter.BucketCount())
}

// --- RateLimit Middleware Tests ---

func TestRateLimit_Allowed(t *testing.T) {
	limiter := NewTokenBucketLimiter(100, 100, 0)
	defer limiter.Stop()

	config := DefaultRateLimitConfig()
	config.SkipPaths = nil

	called := false
	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/v1/patents", nil)
	r.RemoteAddr = "192.168.1.1:12345"
	handler.ServeHTTP(w, r)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_Exceeded(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1, 0) // very restrictive
	defer limiter.Stop()

	config := DefaultRateLimitConfig()
	config.SkipPaths = nil

	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// First request should pass
	w1 := httptest.NewRecorder()
	r1 := httptest.NewRequest("GET", "/api", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(w1, r1)
	assert.Equal(t, http.StatusOK, w1.Code)

	// Second request should be rate limited
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("GET", "/api", nil)
	r2.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)

	var resp map[string]interface{}
	json.Unmarshal(w2.Body.Bytes(), &resp)
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, "RATE_LIMITED", errObj["code"])
}

func TestRateLimit_Headers(t *testing.T) {
	limiter := NewTokenBucketLimiter(10, 10, 0)
	defer limiter.Stop()

	config := DefaultRateLimitConfig()
	config.SkipPaths = nil

	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "10.0.0.2:5678"
	handler.ServeHTTP(w, r)

	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	remaining := w.Header().Get("X-RateLimit-Remaining")
	assert.NotEmpty(t, remaining)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_RetryAfter(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1, 0)
	defer limiter.Stop()

	config := DefaultRateLimitConfig()
	config.SkipPaths = nil

	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Exhaust
	w1 := httptest.NewRecorder()
	r1 := httptest.NewRequest("GET", "/api", nil)
	r1.RemoteAddr = "10.0.0.3:1111"
	handler.ServeHTTP(w1, r1)

	// Exceed
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("GET", "/api", nil)
	r2.RemoteAddr = "10.0.0.3:1111"
	handler.ServeHTTP(w2, r2)

	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.NotEmpty(t, w2.Header().Get("Retry-After"))
}

func TestRateLimit_SkipPaths(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1, 0)
	defer limiter.Stop()

	config := DefaultRateLimitConfig()
	config.SkipPaths = []string{"/health"}

	called := false
	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	// Multiple requests to /health should all pass
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/health", nil)
		r.RemoteAddr = "10.0.0.4:2222"
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.True(t, called)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1, 0)
	defer limiter.Stop()

	config := DefaultRateLimitConfig()
	config.SkipPaths = nil
	config.KeyFunc = func(r *http.Request) string {
		return r.Header.Get("X-Custom-Key")
	}

	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Different keys should have independent limits
	w1 := httptest.NewRecorder()
	r1 := httptest.NewRequest("GET", "/api", nil)
	r1.Header.Set("X-Custom-Key", "user-a")
	handler.ServeHTTP(w1, r1)
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("GET", "/api", nil)
	r2.Header.Set("X-Custom-Key", "user-b")
	handler.ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestRateLimit_CustomExceededHandler(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1, 0)
	defer limiter.Stop()

	customCalled := false
	config := DefaultRateLimitConfig()
	config.SkipPaths = nil
	config.ExceededHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customCalled = true
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("custom exceeded"))
	})

	handler := RateLimit(limiter, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Exhaust
	w1 := httptest.NewRecorder()
	r1 := httptest.NewRequest("GET", "/api", nil)
	r1.RemoteAddr = "10.0.0.5:3333"
	handler.ServeHTTP(w1, r1)

	// Exceed → custom handler
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("GET", "/api", nil)
	r2.RemoteAddr = "10.0.0.5:3333"
	handler.ServeHTTP(w2, r2)

	assert.True(t, customCalled)
	assert.Equal(t, http.StatusServiceUnavailable, w2.Code)
	assert.Equal(t, "custom exceeded", w2.Body.String())
}

// --- Key Function Tests ---

func TestDefaultKeyFunc_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	r.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "203.0.113.50", defaultKeyFunc(r))
}

func TestDefaultKeyFunc_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.25")
	r.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "198.51.100.25", defaultKeyFunc(r))
}

func TestDefaultKeyFunc_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.100:54321"

	assert.Equal(t, "192.168.1.100:54321", defaultKeyFunc(r))
}

func TestDefaultRateLimitConfig(t *testing.T) {
	config := DefaultRateLimitConfig()

	assert.Equal(t, float64(10), config.RequestsPerSecond)
	assert.Equal(t, 20, config.BurstSize)
	assert.NotNil(t, config.KeyFunc)
	assert.Contains(t, config.SkipPaths, "/health")
	assert.Equal(t, 5*time.Minute, config.CleanupInterval)
	assert.Nil(t, config.ExceededHandler)
}

