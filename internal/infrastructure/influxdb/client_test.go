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

	"github.com/nerrad567/tenantgate/internal/infrastructure/config"
	"github.com/nerrad567/tenantgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/tenantgate/internal/observer"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	query  string
	reject bool
	server *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			if f.reject {
				f.mu.Unlock()
				http.Error(w, `{"code":"invalid","message":"bucket schema mismatch"}`, http.StatusBadRequest)
				return
			}
			f.query = r.URL.RawQuery
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "tenantgate-test-token",
		Org:           "tenantgate",
		Bucket:        "gateway",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// waitForLines polls until n lines arrived or the deadline passes.
func waitForLines(t *testing.T, f *fakeInflux, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lines := f.written(); len(lines) >= n {
			return lines
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("received %d lines, want %d", len(f.written()), n)
	return nil
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(f.server.URL))
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
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	url := f.server.URL
	f.server.Close()

	_, err := influxdb.Connect(testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.server.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writes after Close are dropped.
	client.WritePoint("x", nil, map[string]any{"v": 1}, time.Now())
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoint(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePoint("system_stats",
		map[string]string{"host": "gw-01"},
		map[string]any{"goroutines": int64(12)},
		time.Now())

	lines := waitForLines(t, f, 1)
	if !strings.HasPrefix(lines[0], "system_stats,host=gw-01 goroutines=12i ") {
		t.Errorf("line = %q", lines[0])
	}
	f.mu.Lock()
	query := f.query
	f.mu.Unlock()
	if !strings.Contains(query, "bucket=gateway") || !strings.Contains(query, "org=tenantgate") {
		t.Errorf("write query = %q", query)
	}
}

func TestEventSink(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	sink := influxdb.NewEventSink(client)
	when := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err = sink.Handle(context.Background(), observer.Event{
		Time:       when,
		Operation:  observer.OpCreate,
		Collection: "orders",
		OrgID:      "org-1",
		Outcome:    observer.OutcomeFailure,
		ErrorKind:  "validation",
		Duration:   1500 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	line := waitForLines(t, f, 1)[0]
	for _, want := range []string{
		"gateway_ops,",
		"collection=orders",
		"error_kind=validation",
		"operation=create",
		"org_id=org-1",
		"outcome=failure",
		"count=1i",
		"duration_ms=1.5",
		"items=0i",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.HasSuffix(line, " 1772355600000000000") {
		t.Errorf("line %q has wrong timestamp", line)
	}
}

func TestSetOnError_WriteFailed(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	f.mu.Lock()
	f.reject = true
	f.mu.Unlock()

	got := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})
	client.WritePoint(influxdb.MeasurementGatewayOps,
		map[string]string{"operation": "query"},
		map[string]any{"count": int64(1)},
		time.Now())

	select {
	case err := <-got:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write failure was not reported")
	}
	if client.WriteFailures() == 0 {
		t.Error("WriteFailures() = 0 after a rejected batch")
	}
}
