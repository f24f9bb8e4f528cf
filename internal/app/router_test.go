package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/cache"
	"github.com/s2intelligence/ninefold-gateway/internal/adapter/httpserver"
	"github.com/s2intelligence/ninefold-gateway/internal/config"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
	"github.com/s2intelligence/ninefold-gateway/internal/service/analyzer"
	"github.com/s2intelligence/ninefold-gateway/internal/service/auth"
	"github.com/s2intelligence/ninefold-gateway/internal/service/metrics"
	"github.com/s2intelligence/ninefold-gateway/internal/service/ratelimiter"
	"github.com/s2intelligence/ninefold-gateway/internal/service/registry"
	"github.com/s2intelligence/ninefold-gateway/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty means all", in: "", want: []string{"*"}},
		{name: "wildcard", in: "*", want: []string{"*"}},
		{name: "single", in: "https://app.example.com", want: []string{"https://app.example.com"}},
		{name: "list with spaces", in: "https://a.example.com, https://b.example.com", want: []string{"https://a.example.com", "https://b.example.com"}},
		{name: "trailing comma", in: "https://a.example.com,", want: []string{"https://a.example.com"}},
		{name: "only commas", in: ",,", want: []string{"*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParseOrigins(tt.in))
		})
	}
}

func buildTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{
		AppEnv:           "test",
		CORSAllowOrigins: "*",
		LoginRatePerMin:  30,
	}

	authSvc := auth.New("test-secret", time.Hour, auth.DemoVerifier{})
	_, err := authSvc.SeedDefaults()
	require.NoError(t, err)

	reg := registry.New(config.DefaultCatalogue(), nil, 30*time.Second, time.Second)
	an, err := analyzer.New(config.DefaultCatalogue())
	require.NoError(t, err)
	agg := metrics.New()
	router := usecase.NewRouter(an, reg, nil, cache.NewDisabled(), agg, usecase.Options{})
	limiter := ratelimiter.New(60, time.Minute, func(domain.Tier) int { return 1 })

	srv := httpserver.New(cfg, authSvc, limiter, router, reg, agg, nil)
	return BuildRouter(cfg, srv)
}

func TestBuildRouter_ServiceInfo(t *testing.T) {
	handler := buildTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestBuildRouter_PrometheusExposition(t *testing.T) {
	handler := buildTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRouter_UnauthenticatedQuery(t *testing.T) {
	handler := buildTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
