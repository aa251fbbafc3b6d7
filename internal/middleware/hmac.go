// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"walletbridge/internal/auth"
	"walletbridge/pkg/config"
	"walletbridge/pkg/errors"
	"walletbridge/pkg/logger"
)

const maxBridgeBodyBytes = 1 << 20

type contextKey string

const ctxAPIKeyKey contextKey = "api_key"

// Counter is the cache slice backing the per-key fixed window.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// HMACMiddleware authenticates bridge requests against the keyring and
// applies a fixed-window rate limit per API key.
type HMACMiddleware struct {
	keyring *auth.Keyring
	counter Counter
	limit   int
	window  time.Duration
	logger  logger.Logger
}

func NewHMACMiddleware(keyring *auth.Keyring, counter Counter, limit int, window time.Duration, log logger.Logger) *HMACMiddleware {
	return &HMACMiddleware{
		keyring: keyring,
		counter: counter,
		limit:   limit,
		window:  window,
		logger:  log,
	}
}

// Authenticate verifies the X-CB-* headers over the buffered request body and
// injects the caller's API key into the request context. The body is restored
// so downstream handlers can decode it.
func (m *HMACMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBridgeBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		apiKey, err := m.keyring.Verify(
			r.Header.Get(auth.HeaderKey),
			r.Header.Get(auth.HeaderSignature),
			r.Header.Get(auth.HeaderTimestamp),
			r.URL.Path,
			body,
			time.Now(),
		)
		if err != nil {
			m.logger.Warn("bridge authentication failed", map[string]interface{}{
				"path":   r.URL.Path,
				"key":    r.Header.Get(auth.HeaderKey),
				"ip":     r.RemoteAddr,
				"reason": err.Error(),
			})
			jsonError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if !m.allow(r.Context(), apiKey.Key) {
			m.logger.Warn("bridge rate limit exceeded", map[string]interface{}{
				"key": apiKey.Key,
			})
			jsonError(w, http.StatusTooManyRequests, errors.ErrTooManyRequests.Error())
			return
		}

		ctx := context.WithValue(r.Context(), ctxAPIKeyKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *HMACMiddleware) allow(ctx context.Context, key string) bool {
	if m.counter == nil || m.limit <= 0 || m.window <= 0 {
		return true
	}

	redisKey := fmt.Sprintf("bridge_rl:%s", key)
	count, err := m.counter.Increment(ctx, redisKey)
	if err != nil {
		// Counter errors never block authenticated bridge traffic.
		return true
	}
	if count == 1 {
		if err := m.counter.Expire(ctx, redisKey, m.window); err != nil {
			return true
		}
	}
	return count <= int64(m.limit)
}

// APIKeyFromContext returns the authenticated caller's API key config.
func APIKeyFromContext(ctx context.Context) (*config.APIKey, bool) {
	v, ok := ctx.Value(ctxAPIKeyKey).(*config.APIKey)
	return v, ok
}
