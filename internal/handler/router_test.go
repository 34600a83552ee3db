package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/fallback"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/metrics"
	aiService "github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
	chatService "github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	speechService "github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metrics.MustRegister()

	aiSvc, err := aiService.NewService(context.Background(), nil, fallback.NewSeeded(1), logging.Nop(), aiService.Options{})
	require.NoError(t, err)
	bridge := speechService.NewBridge(logging.Nop())
	ctrl := speechService.NewController(bridge, logging.Nop(), speechService.Options{})
	chatSvc := chatService.NewService(aiSvc, ctrl, logging.Nop(), chatService.Options{WarmupDelay: time.Hour})
	t.Cleanup(chatSvc.Close)

	return NewRouter(Deps{
		Chat:           chatSvc,
		AI:             aiSvc,
		Device:         bridge,
		Bridge:         bridge,
		AllowedOrigins: []string{"*"},
	})
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","remote":false}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestRoutesMounted(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(`{"text":"hello"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/api/messages", "/api/state", "/api/history", "/api/emotions", "/api/speech/voices"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsExposed(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(`{"text":"  "}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `therapist_submissions_rejected_total{reason="empty"}`)
}
