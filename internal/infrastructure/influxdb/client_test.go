package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/powerwatch/internal/reading"
)

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	mu       sync.Mutex
	lines    []string
	writeErr bool
	srv      *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()

	f := &fakeInflux{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/ping"):
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/api/v2/write"):
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.writeErr {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
				return
			}
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.srv.URL,
		Token:         "test-token",
		Org:           "powerwatch",
		Bucket:        "electricity",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), f.config())
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

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, config.InfluxDBConfig{Enabled: true, URL: url, Token: "t"})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteReading(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	arrived := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := reading.New(230, 4.5, arrived)
	r.Floor = "3"

	client.WriteReading("301", r)
	client.Observe("105", reading.New(228, 1, arrived))
	client.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %v", len(lines), lines)
	}

	wantParts := []string{
		"electricity,apartment=301,floor=3 ",
		"current=4.5",
		"power=1035",
		"voltage=230",
		" 1772366400000000000",
	}
	for _, part := range wantParts {
		if !strings.Contains(lines[0], part) {
			t.Errorf("line %q missing %q", lines[0], part)
		}
	}
	if !strings.HasPrefix(lines[1], "electricity,apartment=105 ") {
		t.Errorf("line without floor = %q, want no floor tag", lines[1])
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	f := newFakeInflux(t)
	f.writeErr = true

	client, err := influxdb.Connect(context.Background(), f.config())
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

	client.WriteReading("301", reading.New(230, 1, time.Now()))
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteReading("301", reading.New(230, 1, time.Now()))
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(f.written()) != 1 {
		t.Errorf("Close() should flush pending points, got %d", len(f.written()))
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() = %v, want ErrNotConnected", err)
	}

	// Writes and a second Close after shutdown are no-ops.
	client.WriteReading("301", reading.New(230, 1, time.Now()))
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// TestLiveServer runs against a real InfluxDB when POWERWATCH_TEST_INFLUXDB_URL is set.
func TestLiveServer(t *testing.T) {
	url := os.Getenv("POWERWATCH_TEST_INFLUXDB_URL")
	if url == "" {
		t.Skip("POWERWATCH_TEST_INFLUXDB_URL not set")
	}

	client, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{
		Enabled: true,
		URL:     url,
		Token:   os.Getenv("POWERWATCH_TEST_INFLUXDB_TOKEN"),
		Org:     os.Getenv("POWERWATCH_TEST_INFLUXDB_ORG"),
		Bucket:  os.Getenv("POWERWATCH_TEST_INFLUXDB_BUCKET"),
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteReading("test", reading.New(230, 1, time.Now()))
	client.Flush()
}
