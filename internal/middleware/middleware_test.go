package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "existing-id", w.Body.String())

	for _, bad := range []string{"has space", strings.Repeat("x", 129)} {
		req = httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, bad)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.NotEqual(t, bad, w.Body.String())
		assert.Len(t, w.Body.String(), 36)
	}
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	r := gin.New()
	r.Use(RequestID(), Logger(log, "/health"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/health", "/fail", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.NotEmpty(t, entries[2].ContextMap()["request_id"])
}

func TestRequireOperator(t *testing.T) {
	cfg := &AuthConfig{Secret: testSecret, Issuer: "lodgetix"}

	r := gin.New()
	r.POST("/runs", RequireOperator(cfg), func(c *gin.Context) { c.String(http.StatusOK, GetSubject(c)) })

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{"sub": "ops", "role": "operator", "iss": "lodgetix", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, jwt.MapClaims{"sub": "ops", "role": "operator", "iss": "other"}), http.StatusUnauthorized},
		{"viewer role", "Bearer " + signToken(t, jwt.MapClaims{"sub": "ops", "role": "viewer", "iss": "lodgetix"}), http.StatusForbidden},
		{"operator", "Bearer " + signToken(t, jwt.MapClaims{"sub": "ops", "role": "operator", "iss": "lodgetix", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "ops"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(&AuthConfig{Secret: testSecret}, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// fakeRedis keeps values in a map
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Key(parts ...string) string {
	return "test:" + strings.Join(parts, ":")
}

func TestIdempotency(t *testing.T) {
	store := newFakeRedis()
	calls := 0

	r := gin.New()
	r.POST("/runs", Idempotency(&IdempotencyConfig{Redis: store}), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusAccepted, gin.H{"run": calls})
	})

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(body))
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("", "{}")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	first := send("k1", `{"dryRun":true}`)
	assert.Equal(t, http.StatusAccepted, first.Code)

	replayed := send("k1", `{"dryRun":true}`)
	assert.Equal(t, http.StatusAccepted, replayed.Code)
	assert.Equal(t, first.Body.String(), replayed.Body.String())
	assert.Equal(t, 1, calls)

	reused := send("k1", `{"dryRun":false}`)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)

	second := send("k2", `{"dryRun":true}`)
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_InProgress(t *testing.T) {
	store := newFakeRedis()
	r := gin.New()
	r.POST("/runs", Idempotency(&IdempotencyConfig{Redis: store}), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{}"))
	req.Header.Set(IdempotencyKeyHeader, "busy")

	// simulate a request that is still running
	hash := func() string {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/runs", nil)
		return requestHash(c, []byte("{}"))
	}()
	claimed, _, err := recordStore{store}.claim(context.Background(), store.Key("idempotency", "", "busy"),
		&IdempotencyRecord{Status: StatusProcessing, RequestHash: hash}, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_ServerErrorReleasesKey(t *testing.T) {
	store := newFakeRedis()
	fail := true
	r := gin.New()
	r.POST("/runs", Idempotency(&IdempotencyConfig{Redis: store}), func(c *gin.Context) {
		if fail {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{}"))
		req.Header.Set(IdempotencyKeyHeader, "retry-me")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, send())
	assert.Empty(t, store.data)

	fail = false
	assert.Equal(t, http.StatusAccepted, send())
	assert.Len(t, store.data, 1)
}
