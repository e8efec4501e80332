package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchportal/datashare-coordinator/internal/coordination"
)

type stubService struct{}

func (*stubService) CreateCoordinationTask(
	_ context.Context,
	_ coordination.CreateParams,
) (*coordination.Handle, error) {
	return &coordination.Handle{BusinessKey: "bk", TaskID: "task"}, nil
}

func (*stubService) PollReceivedDataSets(
	_ context.Context,
	_ string,
	_ *time.Time,
) ([]coordination.ReceivedDataSet, error) {
	return nil, nil
}

func (*stubService) ExtendDeliveryWindow(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (*stubService) ReleaseConsolidation(_ context.Context, _ string) error {
	return nil
}

func (*stubService) FetchResultURL(_ context.Context, _ string) (string, error) {
	return "", nil
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("health endpoints respond", func(t *testing.T) {
		t.Parallel()

		server := NewServer(&stubService{})

		for _, path := range []string{"/health", "/readiness"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code, path)
			assert.JSONEq(t, `{"status":"ok"}`, w.Body.String(), path)
		}
	})

	t.Run("version endpoint returns build info", func(t *testing.T) {
		t.Parallel()

		server := NewServer(&stubService{})
		req := httptest.NewRequest(http.MethodGet, "/version", nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Contains(t, body, "version")
		assert.Contains(t, body, "go_version")
	})

	t.Run("v1 routes are mounted", func(t *testing.T) {
		t.Parallel()

		server := NewServer(&stubService{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/coordinations/bk/data-sets", nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("metrics endpoint only mounted when configured", func(t *testing.T) {
		t.Parallel()

		plain := NewServer(&stubService{})
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		plain.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)

		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		withMetrics := NewServer(&stubService{}, WithMetricsHandler(metrics))
		w = httptest.NewRecorder()
		withMetrics.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("custom middleware wraps all routes", func(t *testing.T) {
		t.Parallel()

		header := func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Test", "wrapped")
				next.ServeHTTP(w, r)
			})
		}

		server := NewServer(&stubService{}, WithMiddlewares(header))
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)

		assert.Equal(t, "wrapped", w.Header().Get("X-Test"))
	})
}
