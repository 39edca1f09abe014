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

	"github.com/nerrad567/signalchain-core/internal/infrastructure/config"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /write.
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	query  string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/health"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"influxdb","status":"pass"}`)
	case strings.HasSuffix(r.URL.Path, "/write"):
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.query = r.URL.RawQuery
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "")
}

func newFakeInflux(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "lab",
		Bucket:        "bench",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// waitForWrite polls until the fake server has seen a body containing want.
func waitForWrite(t *testing.T, fake *fakeInflux, want string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := fake.written(); strings.Contains(got, want) {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no write containing %q, got %q", want, fake.written())
	return ""
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := newFakeInflux(t)
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, cfg := newFakeInflux(t)
	cfg.URL = "http://127.0.0.1:1"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndHealthCheck(t *testing.T) {
	_, cfg := newFakeInflux(t)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteChainSample(t *testing.T) {
	fake, cfg := newFakeInflux(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	measured := 1e-6
	client.WriteChainSample("chain-1", influxdb.ChainSample{
		X:                 0.1,
		FrequencyHz:       1000,
		CommandedCurrentA: 1e-6,
		MeasuredCurrentA:  &measured,
		Timestamp:         time.Unix(1_700_000_000, 0),
	})
	client.Flush()

	got := waitForWrite(t, fake, "signal_chain,chain_id=chain-1")
	for _, want := range []string{"frequency_hz=1000", "measured_current_a=", "1700000000000000000"} {
		if !strings.Contains(got, want) {
			t.Errorf("line protocol %q missing %q", got, want)
		}
	}

	fake.mu.Lock()
	query := fake.query
	fake.mu.Unlock()
	if !strings.Contains(query, "bucket=bench") || !strings.Contains(query, "org=lab") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteAdvisory(t *testing.T) {
	fake, cfg := newFakeInflux(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteAdvisory("chain-1", influxdb.AdvisorySample{TargetA: 1e-3, PredictedV: 10, ThresholdV: 0.8, InputRangeV: 1})
	client.Flush()

	got := waitForWrite(t, fake, "signal_chain_advisory,chain_id=chain-1")
	if !strings.Contains(got, "predicted_v=10") {
		t.Errorf("line protocol %q missing predicted_v", got)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	fake, cfg := newFakeInflux(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	client.WriteChainSample("closed-chain", influxdb.ChainSample{R: 1e-3})
	client.Flush()

	if got := fake.written(); strings.Contains(got, "closed-chain") {
		t.Errorf("point written after Close: %q", got)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestNewChainPoint(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name         string
		sample       influxdb.ChainSample
		wantMeasured bool
	}{
		{"without resistance estimate", influxdb.ChainSample{X: 1, Timestamp: ts}, false},
		{"with resistance estimate", influxdb.ChainSample{X: 1, MeasuredCurrentA: new(float64), Timestamp: ts}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := influxdb.NewChainPoint("chain-7", tt.sample)
			if p.Name() != influxdb.MeasurementChain {
				t.Errorf("Name() = %q, want %q", p.Name(), influxdb.MeasurementChain)
			}
			if !p.Time().Equal(ts) {
				t.Errorf("Time() = %v, want %v", p.Time(), ts)
			}

			tags := p.TagList()
			if len(tags) != 1 || tags[0].Key != "chain_id" || tags[0].Value != "chain-7" {
				t.Errorf("tags = %v, want chain_id=chain-7", tags)
			}

			hasMeasured := false
			for _, f := range p.FieldList() {
				if f.Key == "measured_current_a" {
					hasMeasured = true
				}
			}
			if hasMeasured != tt.wantMeasured {
				t.Errorf("measured_current_a present = %v, want %v", hasMeasured, tt.wantMeasured)
			}
		})
	}
}
