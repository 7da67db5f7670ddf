package controlplane

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openmined/vaultsync/internal/controlplane/middleware"
	"github.com/openmined/vaultsync/internal/metrics"
	"github.com/openmined/vaultsync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	requests int
}

func (s *stubService) Snapshot() sync.Snapshot {
	return sync.Snapshot{Status: sync.StatusIdle}
}

func (s *stubService) RequestRun() bool {
	s.requests++
	return true
}

func request(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes(t *testing.T) {
	svc := &stubService{}
	m := metrics.New()
	m.RecordRun("ok", time.Second)
	h := SetupRoutes(svc, &RouteConfig{
		Auth:    middleware.TokenAuthConfig{Token: "secret"},
		Metrics: m,
	})

	tests := []struct {
		name   string
		method string
		target string
		token  string
		want   int
	}{
		{"index", http.MethodGet, "/", "", http.StatusOK},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"status needs token", http.MethodGet, "/v1/status", "", http.StatusUnauthorized},
		{"status", http.MethodGet, "/v1/status", "secret", http.StatusOK},
		{"process", http.MethodGet, "/v1/process", "secret", http.StatusOK},
		{"plan before a run", http.MethodGet, "/v1/sync/plan", "secret", http.StatusNotFound},
		{"sync now", http.MethodPost, "/v1/sync/now", "secret", http.StatusAccepted},
		{"wrong method", http.MethodGet, "/v1/sync/now", "secret", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/v2/anything", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(h, tt.method, tt.target, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 1, svc.requests)

	w := request(h, http.MethodGet, "/metrics", "")
	assert.Contains(t, w.Body.String(), "vaultsync_runs_completed_total")
}

func TestSetupRoutes_NoMetrics(t *testing.T) {
	h := SetupRoutes(&stubService{}, &RouteConfig{})
	assert.Equal(t, http.StatusNotFound, request(h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/v1/status", "").Code, "no token configured")
}

func TestServer_ServeAndStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(&Config{Addr: ln.Addr().String()}, &stubService{}, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, <-done)
}
