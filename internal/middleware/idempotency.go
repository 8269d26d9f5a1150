package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/response"
)

const (
	IdempotencyKeyHeader     = "X-Idempotency-Key"
	ContextKeyIdempotencyKey = "idempotency_key"

	// DefaultIdempotencyTTL keeps completed run responses for a day
	DefaultIdempotencyTTL = 24 * time.Hour
	// DefaultProcessingTTL bounds how long an in-flight request blocks retries
	DefaultProcessingTTL = 10 * time.Minute
)

type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is the JSON value stored per key
type IdempotencyRecord struct {
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"requestHash"`
	ResponseCode int               `json:"responseCode,omitempty"`
	ResponseBody []byte            `json:"responseBody,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// RedisClient is the subset of pkg/redis the middleware needs
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Key(parts ...string) string
}

type IdempotencyConfig struct {
	Redis         RedisClient
	TTL           time.Duration
	ProcessingTTL time.Duration
}

// Idempotency makes run triggers safe to retry. The first request with a
// given X-Idempotency-Key claims it; repeats get the stored response, a
// different body under the same key gets 422, and a repeat while the first
// is still running gets 409. Keys are scoped to the authenticated subject.
// Server errors release the key so the caller can retry. Redis errors fail
// open.
func Idempotency(cfg *IdempotencyConfig) gin.HandlerFunc {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultIdempotencyTTL
	}
	processingTTL := cfg.ProcessingTTL
	if processingTTL == 0 {
		processingTTL = DefaultProcessingTTL
	}
	store := recordStore{cfg.Redis}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			response.BadRequest(c, IdempotencyKeyHeader+" header is required")
			c.Abort()
			return
		}
		c.Set(ContextKeyIdempotencyKey, key)

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		ctx := c.Request.Context()
		redisKey := cfg.Redis.Key("idempotency", GetSubject(c), key)
		hash := requestHash(c, body)

		claimed, existing, err := store.claim(ctx, redisKey, &IdempotencyRecord{
			Status:      StatusProcessing,
			RequestHash: hash,
			CreatedAt:   time.Now().UTC(),
		}, processingTTL)
		if err != nil {
			c.Next()
			return
		}
		if !claimed {
			replay(c, existing, hash)
			return
		}

		rec := &recorder{ResponseWriter: c.Writer, status: http.StatusOK}
		c.Writer = rec
		c.Next()

		if rec.status >= http.StatusInternalServerError {
			store.release(context.WithoutCancel(ctx), redisKey)
			return
		}
		store.save(context.WithoutCancel(ctx), redisKey, &IdempotencyRecord{
			Status:       StatusCompleted,
			RequestHash:  hash,
			ResponseCode: rec.status,
			ResponseBody: rec.body.Bytes(),
			CreatedAt:    time.Now().UTC(),
		}, ttl)
	}
}

func replay(c *gin.Context, rec *IdempotencyRecord, hash string) {
	switch {
	case rec == nil:
		response.Conflict(c, "idempotency key is being released, retry shortly")
	case rec.RequestHash != hash:
		response.Error(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key already used with a different request", "")
	case rec.Status == StatusProcessing:
		response.Conflict(c, "a request with this idempotency key is still running")
	default:
		c.Data(rec.ResponseCode, "application/json; charset=utf-8", rec.ResponseBody)
	}
	c.Abort()
}

// requestHash binds a key to method, path, subject and body
func requestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	for _, part := range []string{c.Request.Method, c.Request.URL.Path, GetSubject(c)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type recordStore struct {
	rdb RedisClient
}

// claim stores rec when key is free. Otherwise it returns the record holding
// the key, which is nil if it expired between the two calls.
func (s recordStore) claim(ctx context.Context, key string, rec *IdempotencyRecord, ttl time.Duration) (bool, *IdempotencyRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, nil, err
	}
	ok, err := s.rdb.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}
	existing, err := s.load(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, nil, nil
	}
	return false, existing, err
}

func (s recordStore) load(ctx context.Context, key string) (*IdempotencyRecord, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s recordStore) save(ctx context.Context, key string, rec *IdempotencyRecord, ttl time.Duration) {
	if data, err := json.Marshal(rec); err == nil {
		_ = s.rdb.Set(ctx, key, data, ttl).Err()
	}
}

func (s recordStore) release(ctx context.Context, key string) {
	_ = s.rdb.Del(ctx, key).Err()
}

// recorder tees the response body so it can be replayed
type recorder struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *recorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
