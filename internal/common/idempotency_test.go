package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func TestIdemRejectsReplay(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/nonstandard-items", nil)
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusCreated, send())
	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, 1, calls)
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	idem, mr := newIdem(t)
	status := http.StatusUnprocessableEntity
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/nonstandard-items", nil)
	req.Header.Set("Idempotency-Key", "retry-me")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Empty(t, mr.Keys())

	status = http.StatusCreated
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, mr.Keys(), 1)
}

func TestIdemPassThroughWithoutHeader(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, mr.Keys())
}
