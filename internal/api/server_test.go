package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/apartment"
	"github.com/nerrad567/powerwatch/internal/history"
	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/database"
	"github.com/nerrad567/powerwatch/internal/infrastructure/logging"
	"github.com/nerrad567/powerwatch/internal/ingest"
	"github.com/nerrad567/powerwatch/internal/reading"
	"github.com/nerrad567/powerwatch/internal/store"
	_ "github.com/nerrad567/powerwatch/migrations"
)

// fakeIngest reports a fixed connection state.
type fakeIngest struct {
	state ingest.State
}

func (f *fakeIngest) State() ingest.State { return f.state }

func (f *fakeIngest) HealthCheck(context.Context) error {
	if f.state != ingest.StateConnected {
		return errors.New("mqtt " + f.state.String())
	}
	return nil
}

// fakeSubscriber records subscriptions and can be told to fail.
type fakeSubscriber struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return nil
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("unreachable") }

type testEnv struct {
	srv    *Server
	store  *store.Store
	ingest *fakeIngest
	subs   *fakeSubscriber
}

// testServer creates a Server over a real store, an apartment registry and a
// history persister backed by a migrated SQLite database.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	st := store.New()
	subs := &fakeSubscriber{}
	ing := &fakeIngest{state: ingest.StateConnected}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logging.Discard(),
		Store:      st,
		Ingest:     ing,
		Version:    "test",
		Apartments: apartment.NewRegistry(apartment.NewSQLiteRepository(db.DB), subs),
		History:    history.NewPersister(st, history.NewSQLiteRepository(db.DB)),
		Checks:     map[string]HealthChecker{"database": db},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{srv: srv, store: st, ingest: ing, subs: subs}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func sampleReading() reading.Reading {
	r := reading.New(230, 4.5, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r.Floor = "3"
	r.Extra = map[string]any{"room_temperature": 21.5}
	return r
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) succeeded, want error")
	}
	if _, err := New(Deps{Logger: logging.Discard(), Store: store.New()}); err == nil {
		t.Error("New() without ingest succeeded, want error")
	}
}

// ─── Probe Tests ──────────────────────────────────────────────────

func TestLivenessAndReadiness(t *testing.T) {
	env := testServer(t)

	if w := env.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("/readyz connected status = %d, want 200", w.Code)
	}

	env.ingest.state = ingest.StateConnecting
	w := env.do(t, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz connecting status = %d, want 503", w.Code)
	}
	if got := decodeBody(t, w)["mqtt"]; got != "connecting" {
		t.Errorf("mqtt = %v, want connecting", got)
	}
	if w := env.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("/healthz must not depend on the broker, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	checks, _ := resp["checks"].(map[string]any)
	if checks["database"] != "ok" {
		t.Errorf("checks.database = %v, want ok", checks["database"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := testServer(t)
	env.srv.checks["redis"] = failingCheck{}

	resp := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/health", ""))
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	checks, _ := resp["checks"].(map[string]any)
	if checks["redis"] != "unreachable" {
		t.Errorf("checks.redis = %v, want unreachable", checks["redis"])
	}

	env.srv.checks = nil
	env.ingest.state = ingest.StateDisconnected
	resp = decodeBody(t, env.do(t, http.MethodGet, "/api/v1/health", ""))
	if resp["status"] != "degraded" || resp["mqtt"] != "disconnected" {
		t.Errorf("got status=%v mqtt=%v, want degraded/disconnected", resp["status"], resp["mqtt"])
	}
}

func TestSystem(t *testing.T) {
	env := testServer(t)
	env.store.Put("301", sampleReading())

	w := env.do(t, http.MethodGet, "/api/v1/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Readings.Apartments != 1 {
		t.Errorf("readings.apartments = %d, want 1", m.Readings.Apartments)
	}
	if !m.MQTT.Connected || m.MQTT.State != "connected" {
		t.Errorf("mqtt = %+v, want connected", m.MQTT)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime.goroutines = 0")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("/metrics body missing go_goroutines")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/readings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if decodeBody(t, w)["code"] != ErrCodeNotFound {
		t.Errorf("body = %s, want not_found code", w.Body.String())
	}
}

// ─── Reading Tests ──────────────────────────────────────────────────

func TestListReadings(t *testing.T) {
	env := testServer(t)

	resp := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/readings", ""))
	if resp["count"] != float64(0) {
		t.Errorf("empty count = %v, want 0", resp["count"])
	}

	env.store.Put("301", sampleReading())
	env.store.Put("102", reading.New(229, 1, time.Now()))

	resp = decodeBody(t, env.do(t, http.MethodGet, "/api/v1/readings", ""))
	if resp["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", resp["count"])
	}
	list, _ := resp["readings"].([]any)
	first, _ := list[0].(map[string]any)
	if first["apartment"] != "102" {
		t.Errorf("first apartment = %v, want 102 (sorted)", first["apartment"])
	}
}

func TestGetReading(t *testing.T) {
	env := testServer(t)
	env.store.Put("301", sampleReading())

	w := env.do(t, http.MethodGet, "/api/v1/readings/301", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var view ReadingView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !view.HasData || view.Power != 1035 || view.Floor != "3" {
		t.Errorf("view = %+v, want has_data power=1035 floor=3", view)
	}
	if view.Extra["room_temperature"] != 21.5 {
		t.Errorf("extra = %v, want room_temperature 21.5", view.Extra)
	}
}

func TestGetReading_NoData(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/readings/999", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["has_data"] != false || resp["apartment"] != "999" {
		t.Errorf("body = %v, want apartment=999 has_data=false", resp)
	}
	if _, ok := resp["voltage"]; ok {
		t.Error("no-data body must not carry measurement fields")
	}
}

func TestGetReading_InvalidKey(t *testing.T) {
	env := testServer(t)

	for _, key := range []string{"30+1", "+"} {
		w := env.do(t, http.MethodGet, "/api/v1/readings/"+key, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET readings/%s status = %d, want 400", key, w.Code)
		}
	}
}

func TestGetReading_LongIngestedKey(t *testing.T) {
	env := testServer(t)
	env.store.Put("meter-apt-0301", sampleReading())

	w := env.do(t, http.MethodGet, "/api/v1/readings", "")
	if !strings.Contains(w.Body.String(), "meter-apt-0301") {
		t.Fatalf("list body = %s, want meter-apt-0301", w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/readings/meter-apt-0301", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["has_data"] != true {
		t.Errorf("has_data = %v, want true", body["has_data"])
	}
}

func TestSnapshotAndHistory(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/readings/301/snapshot", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("snapshot without data status = %d, want 409", w.Code)
	}
	if decodeBody(t, w)["code"] != ErrCodeNoData {
		t.Errorf("code = %s, want no_data", w.Body.String())
	}

	env.store.Put("301", sampleReading())
	for range 3 {
		if w := env.do(t, http.MethodPost, "/api/v1/readings/301/snapshot", ""); w.Code != http.StatusCreated {
			t.Fatalf("snapshot status = %d, want 201: %s", w.Code, w.Body.String())
		}
	}

	resp := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/readings/301/history?limit=2", ""))
	if resp["count"] != float64(2) {
		t.Errorf("history count = %v, want 2", resp["count"])
	}

	resp = decodeBody(t, env.do(t, http.MethodGet, "/api/v1/readings/301/history", ""))
	if resp["count"] != float64(3) {
		t.Errorf("history count = %v, want 3", resp["count"])
	}
}

func TestHistory_Limit(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusOK},
		{"?limit=500", http.StatusOK},
		{"?limit=501", http.StatusBadRequest},
		{"?limit=0", http.StatusBadRequest},
		{"?limit=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/readings/301/history"+tt.query, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHistory_Unavailable(t *testing.T) {
	env := testServer(t)
	env.srv.history = nil

	if w := env.do(t, http.MethodGet, "/api/v1/readings/301/history", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("history status = %d, want 503", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/readings/301/snapshot", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("snapshot status = %d, want 503", w.Code)
	}
}

// ─── Apartment Tests ────────────────────────────────────────────────

func TestRegisterApartment(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/apartments", `{"apartment":"301","label":"Corner flat"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["floor"] != "3" {
		t.Errorf("floor = %v, want 3 derived from number", resp["floor"])
	}
	if len(env.subs.keys) != 1 || env.subs.keys[0] != "301" {
		t.Errorf("subscriptions = %v, want [301]", env.subs.keys)
	}

	resp = decodeBody(t, env.do(t, http.MethodGet, "/api/v1/apartments", ""))
	if resp["count"] != float64(1) {
		t.Errorf("list count = %v, want 1", resp["count"])
	}
}

func TestRegisterApartment_Errors(t *testing.T) {
	env := testServer(t)
	if w := env.do(t, http.MethodPost, "/api/v1/apartments", `{"apartment":"301"}`); w.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", w.Code)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"empty number", `{"apartment":""}`, http.StatusBadRequest},
		{"wildcard", `{"apartment":"3+1"}`, http.StatusBadRequest},
		{"duplicate", `{"apartment":"301"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/apartments", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRegisterApartment_SubscribePending(t *testing.T) {
	env := testServer(t)
	env.subs.err = errors.New("not connected")

	w := env.do(t, http.MethodPost, "/api/v1/apartments", `{"apartment":"402"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["subscription"] != "pending" {
		t.Errorf("body = %s, want subscription pending", w.Body.String())
	}

	resp := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/apartments", ""))
	if resp["count"] != float64(1) {
		t.Errorf("pending apartment must still be registered, count = %v", resp["count"])
	}
}

func TestApartments_Unavailable(t *testing.T) {
	env := testServer(t)
	env.srv.apartments = nil

	if w := env.do(t, http.MethodGet, "/api/v1/apartments", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Lifecycle Tests ────────────────────────────────────────────────

func TestStartAndClose(t *testing.T) {
	env := testServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start succeeded, want error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	resp, err := http.Get("http://" + env.srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
