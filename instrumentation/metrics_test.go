package instrumentation

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectSums returns the summed int64 counter values keyed by metric name
func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	out := map[string][]metricdata.DataPoint[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = append(out[m.Name], sum.DataPoints...)
			}
		}
	}
	return out
}

func newTestInstrumentation(t *testing.T) (*Instrumentation, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	inst, err := New(Config{Enabled: true, MetricReader: reader})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	return inst, reader
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode int
		durationMs float64
	}{
		{"authorize redirect", "GET", "/authorize", 303, 12.5},
		{"token success", "POST", "/token", 200, 23.4},
		{"token bad request", "POST", "/token", 400, 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst.Metrics().RecordHTTPRequest(ctx, tt.method, tt.endpoint, tt.statusCode, tt.durationMs)
		})
	}

	points := collectSums(t, reader)["oauth.http.requests.total"]
	if len(points) != len(tests) {
		t.Errorf("got %d data points, want %d", len(points), len(tests))
	}
}

func TestMetrics_RecordTokenRequest(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()

	inst.Metrics().RecordTokenRequest(ctx, "authorization_code", ResultSuccess)
	inst.Metrics().RecordTokenRequest(ctx, "authorization_code", ResultSuccess)
	inst.Metrics().RecordTokenRequest(ctx, "refresh_token", "invalid_grant")

	points := collectSums(t, reader)["oauth.token.requests"]
	want := map[string]int64{
		"authorization_code/success":  2,
		"refresh_token/invalid_grant": 1,
	}

	for _, dp := range points {
		grant, _ := dp.Attributes.Value(attribute.Key("grant_type"))
		result, _ := dp.Attributes.Value(attribute.Key("result"))
		key := grant.AsString() + "/" + result.AsString()
		if dp.Value != want[key] {
			t.Errorf("%s = %d, want %d", key, dp.Value, want[key])
		}
	}
}

func TestMetrics_RecordClientAuthentication(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()

	inst.Metrics().RecordClientAuthentication(ctx, "client_secret_basic", true)
	inst.Metrics().RecordClientAuthentication(ctx, "client_secret_post", false)

	points := collectSums(t, reader)["oauth.client.authentications"]
	if len(points) != 2 {
		t.Fatalf("got %d data points, want 2", len(points))
	}
	for _, dp := range points {
		method, _ := dp.Attributes.Value(attribute.Key("method"))
		result, _ := dp.Attributes.Value(attribute.Key("result"))
		switch method.AsString() {
		case "client_secret_basic":
			if result.AsString() != ResultSuccess {
				t.Errorf("basic result = %q, want %q", result.AsString(), ResultSuccess)
			}
		case "client_secret_post":
			if result.AsString() != ResultError {
				t.Errorf("post result = %q, want %q", result.AsString(), ResultError)
			}
		}
	}
}

func TestMetrics_DisabledDoesNotPanic(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordHTTPRequest(ctx, "GET", "/jwks.json", 200, 1)
	m.RecordAuthorizationRequest(ctx, "client", ResultInteraction)
	m.RecordTokenRequest(ctx, "client_credentials", ResultSuccess)
	m.RecordTokenIssued(ctx, "access_token", "client_credentials")
	m.RecordClientAuthentication(ctx, "none", true)
	m.RecordRateLimitExceeded(ctx, "ip")
	m.RecordStorageOperation(ctx, "get_client", ResultSuccess, 0.5)
}
