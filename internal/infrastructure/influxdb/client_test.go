package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/config"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/influxdb"
)

// fakeInflux answers the ping and write endpoints of the v2 API.
type fakeInflux struct {
	*httptest.Server

	mu      sync.Mutex
	writes  []string
	queries []string
	status  int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{status: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.queries = append(f.queries, r.URL.RawQuery)
			status := f.status
			f.mu.Unlock()
			w.WriteHeader(status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "test-token",
		Org:           "boat",
		Bucket:        "bridge",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(srv.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := newFakeInflux(t)
	cfg := srv.config()
	srv.Close()

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := newFakeInflux(t)
	cfg := srv.config()
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() with default batch settings error = %v", err)
	}
	client.Close()
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteBridgeMetric(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(srv.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteBridgeMetric("42", "deltas_published", 3)
	client.WriteBridgeMetricAt("42", "leases", 2, time.Unix(1760000000, 0))
	client.Flush()

	waitFor(t, "bridge metrics to be written", func() bool {
		return strings.Contains(srv.body(), "leases")
	})

	body := srv.body()
	for _, want := range []string{
		"bridge_metrics,",
		"measurement=deltas_published",
		"system_id=42",
		"measurement=leases",
		"1760000000",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("line protocol %q missing %q", body, want)
		}
	}

	srv.mu.Lock()
	query := srv.queries[0]
	srv.mu.Unlock()
	if !strings.Contains(query, "bucket=bridge") || !strings.Contains(query, "org=boat") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteBridgeMetric_ReportsErrors(t *testing.T) {
	srv := newFakeInflux(t)
	srv.mu.Lock()
	srv.status = http.StatusBadRequest
	srv.mu.Unlock()

	client, err := influxdb.Connect(srv.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	client.WriteBridgeMetric("42", "commands_write", 1)
	client.Flush()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("error callback got nil")
		}
	case <-time.After(5 * time.Second):
		t.Error("error callback not invoked")
	}
}

func TestWriteAfterClose(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(srv.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.WriteBridgeMetric("42", "deltas_received", 1)
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
