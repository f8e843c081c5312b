package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seclabel/config"
)

func TestRequestID(t *testing.T) {
	ts := setupTestAPI(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err, "a request id is generated")

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", id)
	rec := httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	ts := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcard(t *testing.T) {
	ts := setupTestAPI(t, func(_ *Deps, cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"*"}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	rec := httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	ts := setupTestAPI(t, func(_ *Deps, cfg *config.Config) {
		cfg.Server.RateLimitRPS = 1
		cfg.Server.RateLimitBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodGet, "/health", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests", errorMessage(t, w))

	// lifting the limit applies to clients already seen
	cfg := &config.Config{}
	cfg.Server.RateLimitRPS = 1000
	cfg.Server.RateLimitBurst = 1000
	ts.api.UpdateConfig(cfg)
	assert.Eventually(t, func() bool {
		return ts.do(t, http.MethodGet, "/health", nil).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
}

func TestBodyTooLarge(t *testing.T) {
	ts := setupTestAPI(t, func(_ *Deps, cfg *config.Config) {
		cfg.Server.MaxBodyBytes = 64
	})
	id := ts.addEvent(t, eventWithID("big"))

	body := `{"attack_type":"` + strings.Repeat("a", 200) + `"}`
	w := ts.do(t, http.MethodPost, "/api/events/"+itoa(id)+"/label", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServerErrorsAreGeneric(t *testing.T) {
	ts := setupTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	ts.api.writeError(rec, req, http.StatusInternalServerError, "database exploded", assert.AnError)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", errorMessage(t, rec))
}
