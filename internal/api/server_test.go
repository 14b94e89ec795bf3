package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/bridge"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/config"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/logging"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/journal"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeBridge struct {
	report    bridge.StatusReport
	stats     bridge.Stats
	leases    []bridge.Lease
	leasesErr error
}

func (f *fakeBridge) Status() bridge.StatusReport { return f.report }
func (f *fakeBridge) Stats() bridge.Stats         { return f.stats }
func (f *fakeBridge) Leases(context.Context) ([]bridge.Lease, error) {
	return f.leases, f.leasesErr
}

type fakeMQTT struct{ connected bool }

func (f fakeMQTT) IsConnected() bool      { return f.connected }
func (f fakeMQTT) SubscriptionCount() int { return 3 }

type fakeSignalK struct{}

func (fakeSignalK) Stats() signalk.Stats {
	return signalk.Stats{Connected: true, DeltasRx: 99, Reconnects: 1}
}

type fakeDB struct{}

func (fakeDB) Stats() sql.DBStats { return sql.DBStats{OpenConnections: 1, Idle: 1} }

type fakeJournal struct {
	got    journal.Filter
	result *journal.ListResult
	err    error
}

func (f *fakeJournal) List(_ context.Context, filter journal.Filter) (*journal.ListResult, error) {
	f.got = filter
	return f.result, f.err
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()

	deps.Config = config.APIConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}
	deps.Logger = logging.Discard()
	deps.Version = "test"
	if deps.Bridge == nil {
		deps.Bridge = &fakeBridge{report: bridge.StatusReport{Status: bridge.StatusConnected, SystemID: "42"}}
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Bridge: &fakeBridge{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without bridge should fail")
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     bridge.Status
		wantStatus int
	}{
		{"connected", bridge.StatusConnected, http.StatusOK},
		{"degraded", bridge.StatusDegraded, http.StatusServiceUnavailable},
		{"starting", bridge.StatusStarting, http.StatusServiceUnavailable},
		{"stopped", bridge.StatusStopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, Deps{Bridge: &fakeBridge{
				report: bridge.StatusReport{Status: tt.status, Reason: "why", SystemID: "42"},
			}})

			rec := do(t, srv, "/api/v1/health")
			if rec.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp HealthResponse
			decode(t, rec, &resp)
			if resp.Status != tt.status || resp.SystemID != "42" || resp.Version != "test" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestHandleHealth_Components(t *testing.T) {
	srv := testServer(t, Deps{Checks: map[string]HealthChecker{
		"mqtt":     checkFunc(func(context.Context) error { return nil }),
		"database": checkFunc(func(context.Context) error { return errors.New("database is locked") }),
	}})

	rec := do(t, srv, "/api/v1/health")
	var resp HealthResponse
	decode(t, rec, &resp)

	if resp.Components["mqtt"] != "ok" {
		t.Errorf("mqtt component = %q, want ok", resp.Components["mqtt"])
	}
	if resp.Components["database"] != "database is locked" {
		t.Errorf("database component = %q", resp.Components["database"])
	}
}

// =============================================================================
// Metrics
// =============================================================================

func TestHandleMetrics(t *testing.T) {
	srv := testServer(t, Deps{
		Bridge: &fakeBridge{
			report: bridge.StatusReport{Status: bridge.StatusConnected, SystemID: "42"},
			stats:  bridge.Stats{DeltasPublished: 7, Leases: 2},
		},
		MQTT:     fakeMQTT{connected: true},
		SignalK:  fakeSignalK{},
		Database: fakeDB{},
	})

	rec := do(t, srv, "/api/v1/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var m SystemMetrics
	decode(t, rec, &m)

	if m.Bridge.DeltasPublished != 7 || m.Bridge.Leases != 2 {
		t.Errorf("bridge stats = %+v", m.Bridge)
	}
	if !m.MQTT.Connected || m.MQTT.Subscriptions != 3 {
		t.Errorf("mqtt = %+v", m.MQTT)
	}
	if m.SignalK == nil || m.SignalK.DeltasRx != 99 {
		t.Errorf("signalk = %+v", m.SignalK)
	}
	if m.Database == nil || m.Database.OpenConnections != 1 {
		t.Errorf("database = %+v", m.Database)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines = 0")
	}
}

func TestHandleMetrics_OptionalSectionsOmitted(t *testing.T) {
	srv := testServer(t, Deps{})

	rec := do(t, srv, "/api/v1/metrics")

	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	for _, key := range []string{"signalk", "database"} {
		if _, ok := raw[key]; ok {
			t.Errorf("metrics contain %q without that dependency", key)
		}
	}
}

// =============================================================================
// Leases
// =============================================================================

func TestHandleLeases(t *testing.T) {
	expires := time.Date(2026, 10, 19, 12, 1, 0, 0, time.UTC)
	srv := testServer(t, Deps{Bridge: &fakeBridge{
		leases: []bridge.Lease{
			{Pattern: "vessels/self/#", ExpiresAt: expires},
			{Pattern: "vessels/+/navigation/position", ExpiresAt: expires},
		},
	}})

	rec := do(t, srv, "/api/v1/leases")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var resp LeasesResponse
	decode(t, rec, &resp)
	if resp.Count != 2 || resp.Leases[0].Pattern != "vessels/self/#" {
		t.Errorf("response = %+v", resp)
	}
	if !resp.Leases[0].ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", resp.Leases[0].ExpiresAt, expires)
	}
}

func TestHandleLeases_Empty(t *testing.T) {
	srv := testServer(t, Deps{Bridge: &fakeBridge{}})

	rec := do(t, srv, "/api/v1/leases")
	if body := rec.Body.String(); body != "{\"leases\":[],\"count\":0}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestHandleLeases_BridgeStopped(t *testing.T) {
	srv := testServer(t, Deps{Bridge: &fakeBridge{leasesErr: bridge.ErrStopped}})

	rec := do(t, srv, "/api/v1/leases")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", rec.Code)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestHandleListCommands(t *testing.T) {
	j := &fakeJournal{result: &journal.ListResult{
		Entries: []journal.Entry{{ID: "a", Kind: journal.KindCommand, Action: "W", Path: "x.y"}},
		Total:   1,
		Limit:   5,
	}}
	srv := testServer(t, Deps{Journal: j})

	rec := do(t, srv, "/api/v1/commands?action=W&path=x.y&limit=5&offset=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	want := journal.Filter{Action: "W", Path: "x.y", Limit: 5, Offset: 10}
	if j.got != want {
		t.Errorf("filter = %+v, want %+v", j.got, want)
	}

	var result journal.ListResult
	decode(t, rec, &result)
	if result.Total != 1 || result.Entries[0].ID != "a" {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleListCommands_Errors(t *testing.T) {
	tests := []struct {
		name       string
		journal    CommandLog
		target     string
		wantStatus int
	}{
		{"journal disabled", nil, "/api/v1/commands", http.StatusServiceUnavailable},
		{"bad limit", &fakeJournal{}, "/api/v1/commands?limit=ten", http.StatusBadRequest},
		{"bad offset", &fakeJournal{}, "/api/v1/commands?offset=-x", http.StatusBadRequest},
		{"store failure", &fakeJournal{err: errors.New("disk I/O error")}, "/api/v1/commands", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, Deps{Journal: tt.journal})

			rec := do(t, srv, tt.target)
			if rec.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatus)
			}

			var e Error
			decode(t, rec, &e)
			if e.Status != tt.wantStatus || e.Code == "" {
				t.Errorf("error body = %+v", e)
			}
		})
	}
}

// =============================================================================
// Middleware and routing
// =============================================================================

func TestRequestIDHeader(t *testing.T) {
	srv := testServer(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}

	rec = do(t, srv, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, Deps{})

	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rec.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := testServer(t, Deps{})

	if rec := do(t, srv, "/api/v1/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST health status = %d, want 405", rec.Code)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestServerStartClose(t *testing.T) {
	srv := testServer(t, Deps{})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestCloseNotStarted(t *testing.T) {
	srv := testServer(t, Deps{})
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start() error = %v", err)
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() = %q before Start()", srv.Addr())
	}
}
