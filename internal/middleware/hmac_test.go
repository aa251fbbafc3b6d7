package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"walletbridge/internal/auth"
	"walletbridge/pkg/config"
	"walletbridge/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyring() *auth.Keyring {
	return auth.NewKeyring([]config.APIKey{
		{Key: "store-a", Secret: "s3cret", Label: "Partner A"},
	}, 300*time.Second)
}

func signedRequest(t *testing.T, path, body string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	sig := auth.Sign("store-a", "s3cret", path, []byte(body), ts)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(auth.HeaderKey, "store-a")
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(auth.HeaderSignature, sig)
	return req
}

func TestHMACAuthenticate_ValidSignature(t *testing.T) {
	m := NewHMACMiddleware(testKeyring(), nil, 0, 0, logger.NewNop())

	var gotBody string
	var gotLabel string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if key, ok := APIKeyFromContext(r.Context()); ok {
			gotLabel = key.Label
		}
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"code":"GIFT-500","amount":"500000"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/bridge/v1/wallet-codes", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, gotBody, "body must be readable downstream")
	assert.Equal(t, "Partner A", gotLabel)
}

func TestHMACAuthenticate_TamperedBody(t *testing.T) {
	m := NewHMACMiddleware(testKeyring(), nil, 0, 0, logger.NewNop())
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := signedRequest(t, "/bridge/v1/wallet-codes", `{"code":"GIFT-500"}`)
	req.Body = io.NopCloser(strings.NewReader(`{"code":"GIFT-999"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHMACAuthenticate_MissingHeaders(t *testing.T) {
	m := NewHMACMiddleware(testKeyring(), nil, 0, 0, logger.NewNop())
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/bridge/v1/redeem", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHMACAuthenticate_StaleTimestamp(t *testing.T) {
	m := NewHMACMiddleware(testKeyring(), nil, 0, 0, logger.NewNop())
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	body := `{}`
	ts := time.Now().Add(-10 * time.Minute).Unix()
	sig := auth.Sign("store-a", "s3cret", "/bridge/v1/redeem", []byte(body), ts)

	req := httptest.NewRequest(http.MethodPost, "/bridge/v1/redeem", strings.NewReader(body))
	req.Header.Set(auth.HeaderKey, "store-a")
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(auth.HeaderSignature, sig)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// fakeCounter mimics Redis INCR/EXPIRE with a controllable clock.
type fakeCounter struct {
	now       time.Time
	counts    map[string]int64
	deadlines map[string]time.Time
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{
		now:       time.Now(),
		counts:    make(map[string]int64),
		deadlines: make(map[string]time.Time),
	}
}

func (f *fakeCounter) Increment(ctx context.Context, key string) (int64, error) {
	if due, ok := f.deadlines[key]; ok && !f.now.Before(due) {
		delete(f.counts, key)
		delete(f.deadlines, key)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.deadlines[key] = f.now.Add(expiration)
	return nil
}

func TestHMACAuthenticate_PerKeyWindowBoundary(t *testing.T) {
	counter := newFakeCounter()
	m := NewHMACMiddleware(testKeyring(), counter, 2, 300*time.Second, logger.NewNop())
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, "/bridge/v1/redeem", `{}`))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send(), "third request inside the window")

	counter.now = counter.now.Add(300 * time.Second)
	assert.Equal(t, http.StatusOK, send(), "a fresh window opens once the TTL elapses")
}

func TestHMACAuthenticate_UnknownKey(t *testing.T) {
	m := NewHMACMiddleware(testKeyring(), nil, 0, 0, logger.NewNop())
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	body := `{}`
	ts := time.Now().Unix()
	sig := auth.Sign("store-x", "s3cret", "/bridge/v1/redeem", []byte(body), ts)

	req := httptest.NewRequest(http.MethodPost, "/bridge/v1/redeem", strings.NewReader(body))
	req.Header.Set(auth.HeaderKey, "store-x")
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(auth.HeaderSignature, sig)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
