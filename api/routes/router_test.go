package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oneman/oneman-backend/internal/groups"
	"github.com/oneman/oneman-backend/internal/materials"
	"github.com/oneman/oneman-backend/internal/session"
	pkgAuth "github.com/oneman/oneman-backend/pkg/auth"
	"github.com/oneman/oneman-backend/pkg/config"
	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

// stubGroupService only answers ListMine; other calls panic through the nil
// embedded interface.
type stubGroupService struct {
	groups.Service
	gotKind  enums.GroupKind
	gotActor session.Actor
}

func (s *stubGroupService) ListMine(ctx context.Context, actor session.Actor, kind enums.GroupKind, exclude uuid.UUID) ([]groups.GroupSummary, error) {
	s.gotKind = kind
	s.gotActor = actor
	return []groups.GroupSummary{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "router-secret",
			Issuer:            "oneman-idp",
			ExpirationMinutes: 30,
		},
		FeatureFlags: config.FeatureFlagsConfig{LiveStream: true},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, svc groups.Service) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "oneman_router_test_total", Help: "test"}))
	return NewRouter(Params{
		Config:          cfg,
		Logger:          logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		DB:              stubPinger{},
		Metrics:         reg,
		Groups:          svc,
		Catalog:         materials.DefaultCatalog(),
		StreamHeartbeat: time.Second,
	})
}

func bearer(t *testing.T, cfg *config.Config, userID string) string {
	t.Helper()
	token, err := pkgAuth.MintIdentityToken(cfg.JWT, time.Now(), pkgAuth.IdentityPayload{UserID: userID, Email: userID + "@example.com"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubGroupService{})

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}
}

func TestReadinessReportsRedisDisabled(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubGroupService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var envelope struct {
		Data struct {
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Checks["redis"] != "disabled" || envelope.Data.Checks["db"] != "ok" {
		t.Fatalf("unexpected checks %+v", envelope.Data.Checks)
	}
}

func TestMetricsExposed(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubGroupService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "oneman_router_test_total") {
		t.Fatalf("expected registered metric in output")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubGroupService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestGroupListRoutesKindAndActor(t *testing.T) {
	cfg := testConfig()
	svc := &stubGroupService{}
	router := newTestRouter(t, cfg, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotKind != enums.GroupKindStore {
		t.Fatalf("expected store kind, got %s", svc.gotKind)
	}
	if svc.gotActor.UserID != "user-1" {
		t.Fatalf("expected actor user-1, got %q", svc.gotActor.UserID)
	}
}

func TestUnknownKindIsNotFound(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubGroupService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trucks", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestCatalogRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubGroupService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestStreamRouteHonoursFeatureFlag(t *testing.T) {
	cfg := testConfig()
	cfg.FeatureFlags.LiveStream = false
	router := newTestRouter(t, cfg, &stubGroupService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sites/"+uuid.NewString()+"/messages/stream", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 with stream disabled, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubGroupService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sites", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}
