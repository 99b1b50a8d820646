package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/motor-valuation/internal/common"
)

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")
	h := RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonstandard-items/abc", nil)
	req = req.WithContext(common.WithUserID(WithRoutePattern(req.Context(), "/api/v1/nonstandard-items/{id}"), "user-7"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "error", line["level"])
	require.Equal(t, "/api/v1/nonstandard-items/{id}", line["route"])
	require.Equal(t, float64(http.StatusBadGateway), line["status"])
	require.Equal(t, "user-7", line["user_id"])
}

func TestLoggerOrNop(t *testing.T) {
	l := LoggerOrNop(nil)
	require.NotNil(t, l)
	require.Equal(t, zerolog.Disabled, l.GetLevel())
}
