package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Pawieee/microbank/pkg/response"

	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	// how long a request may hold the key before a retry can take it over
	provisionalLockTTL = 60 * time.Second
	storeTimeout       = 2 * time.Second
)

var reKey = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

type entry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code"`
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type"`
	BodySHA256  string    `json:"body_sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

type recorder struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Idempotency makes mutating requests carrying an Idempotency-Key safe to
// retry. The first request with a key runs; later ones with the same body get
// the stored response replayed, and ones with a different body are refused.
// Server errors release the key so the client can retry. Requests without
// the header pass straight through.
func Idempotency(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "idempotency")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !reKey.MatchString(raw) {
				response.BadRequest(w, "invalid "+HeaderIdempotencyKey, errors.New("key must be 1-128 characters of letters, digits, '_', '-', '.', ':'"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				response.BadRequest(w, "unreadable request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)

			key := buildKey(r.Method, r.URL.Path, raw)

			ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			defer cancel()

			ok, err := provisionalSet(ctx, rdb, key, entry{InProgress: true, BodySHA256: hash, CreatedAt: time.Now().UTC()})
			if err != nil {
				logger.ErrorContext(ctx, "idempotency store unavailable", "error", err)
				response.Error(w, http.StatusServiceUnavailable, "idempotency store unavailable", nil)
				return
			}

			if !ok {
				cur, err := loadEntry(ctx, rdb, key)
				if err != nil {
					logger.WarnContext(ctx, "loading idempotency entry", "key", key, "error", err)
				}
				if cur.BodySHA256 != "" && cur.BodySHA256 != hash {
					response.Error(w, http.StatusConflict, HeaderIdempotencyKey+" reused with a different body", nil)
					return
				}
				if !cur.InProgress && cur.Code != 0 {
					replay(w, cur)
					return
				}
				response.Error(w, http.StatusConflict, "request is already in progress", nil)
				return
			}

			rec := &recorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(r.Context()), storeTimeout)
			defer saveCancel()

			if rec.code >= http.StatusInternalServerError {
				if err := rdb.Del(saveCtx, key).Err(); err != nil {
					logger.WarnContext(saveCtx, "releasing idempotency key", "key", key, "error", err)
				}
				return
			}

			final := entry{
				Code:        rec.code,
				Body:        rec.buf.Bytes(),
				ContentType: rec.Header().Get("Content-Type"),
				BodySHA256:  hash,
				CreatedAt:   time.Now().UTC(),
			}
			if err := saveFinal(saveCtx, rdb, key, final, ttl); err != nil {
				logger.WarnContext(saveCtx, "saving idempotent response", "key", key, "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, e entry) {
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(e.Code)
	_, _ = w.Write(e.Body)
}

func bodyHash(b []byte) string { s := sha256.Sum256(b); return hex.EncodeToString(s[:]) }

func buildKey(method, path, key string) string {
	return "idem:" + strings.ToLower(method) + ":" + path + ":" + key
}

func provisionalSet(ctx context.Context, rdb *redis.Client, key string, e entry) (bool, error) {
	payload, _ := json.Marshal(e)
	return rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func loadEntry(ctx context.Context, rdb *redis.Client, key string) (entry, error) {
	var e entry
	v, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(v, &e)
	return e, err
}

func saveFinal(ctx context.Context, rdb *redis.Client, key string, e entry, ttl time.Duration) error {
	payload, _ := json.Marshal(e)
	return rdb.Set(ctx, key, payload, ttl).Err()
}
