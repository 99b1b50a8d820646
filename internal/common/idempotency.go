package common

import (
	"context"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis. Keys are scoped
// to the request method and path. A key is released again when the handler
// fails so the client may retry with the same key.
type Idem struct {
	R   redis.UniversalClient
	TTL time.Duration
}

func idemKey(r *http.Request, header string) string {
	return "idem:" + Sha256Hex(r.Method+" "+r.URL.Path+" "+header)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		key := idemKey(r, header)
		ok, err := i.R.SetNX(r.Context(), key, "locked", ttl).Result()
		if err != nil {
			WriteError(w, Transport("idempotency store error", err))
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if rec.status == 0 || rec.status >= http.StatusBadRequest {
				_ = i.R.Del(context.Background(), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
	})
}
