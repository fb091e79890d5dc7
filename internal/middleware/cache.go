package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// CacheGET returns a middleware that caches successful GET responses in
// Redis under a fixed key prefix.  It is applied only to the role listing:
// role rows change rarely and carry no per-user data.  Refresh-token
// liveness must never pass through here, the database ledger is the single
// cross-instance source of truth for that.  With a nil client the middleware
// is a no-op so the service degrades gracefully when Redis is unreachable.
func CacheGET(rdb *redis.Client, prefix string, ttl time.Duration) echo.MiddlewareFunc {
	if rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			key := prefix + ":" + c.Path()

			if body, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.JSONBlob(http.StatusOK, body)
			}

			rec := &recordingWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if rec.status == http.StatusOK && len(rec.body) > 0 {
				_ = rdb.SetEx(context.Background(), key, rec.body, ttl).Err()
			}
			return nil
		}
	}
}

// recordingWriter captures the response body while forwarding to the client.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
