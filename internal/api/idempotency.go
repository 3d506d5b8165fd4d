package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/susu3304/warikan/internal/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"

	// idempotencyTTL is how long a finished response is replayed.
	idempotencyTTL = 24 * time.Hour

	// idempotencyLockTTL frees the key if a request dies mid-flight.
	idempotencyLockTTL = 10 * time.Second
)

// recorder captures the status and body written by the wrapped handler.
type recorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *recorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// idempotency replays the first 2xx response for a repeated Idempotency-Key.
// Keys are scoped to the caller. Without Redis or a key it is a pass-through.
// It only wraps create endpoints, so a replay answers 201.
func (a *API) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if a.rdb == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		scope := ""
		if c := claimsFrom(ctx); c != nil {
			scope = c.UserID + ":"
		}
		cacheKey := "warikan:idempotency:" + scope + key
		lockKey := "warikan:lock:" + scope + key
		log := logger.Log.WithFields(logrus.Fields{"idempotency_key": key, "path": r.URL.Path})

		cached, err := a.rdb.Get(ctx, cacheKey).Bytes()
		if err == nil {
			log.Debug("idempotency cache hit")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Hit", "true")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(cached)
			return
		}
		if err != redis.Nil {
			log.WithError(err).Warn("idempotency lookup failed")
		}

		acquired, err := a.rdb.SetNX(ctx, lockKey, "processing", idempotencyLockTTL).Result()
		if err != nil {
			log.WithError(err).Error("idempotency lock failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !acquired {
			writeError(w, http.StatusConflict, "a request with this idempotency key is currently being processed")
			return
		}
		defer func() {
			// The request context may already be canceled here.
			if err := a.rdb.Del(context.Background(), lockKey).Err(); err != nil {
				log.WithError(err).Warn("failed to release idempotency lock")
			}
		}()

		rec := &recorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.statusCode >= 200 && rec.statusCode < 300 {
			if err := a.rdb.Set(ctx, cacheKey, rec.body.Bytes(), idempotencyTTL).Err(); err != nil {
				log.WithError(err).Warn("failed to cache response")
			}
		}
	})
}
