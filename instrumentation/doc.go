// Package instrumentation provides OpenTelemetry instrumentation for the authorization server.
//
// When disabled, no-op providers are used and instrumentation has no overhead.
// When enabled, SDK meter and tracer providers are created; metrics can be
// exported through a Prometheus registry and spans through any SpanExporter.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "oauth2-server",
//		ServiceVersion:  "1.0.0",
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// OAuth Flows:
//   - oauth.authorization.requests{client_id, result}
//   - oauth.token.requests{grant_type, result}
//   - oauth.tokens.issued{token_type, grant_type}
//
// Security:
//   - oauth.client.authentications{method, result}
//   - oauth.rate_limit.exceeded{limiter_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.clients.count, storage.authorization_codes.count, storage.refresh_tokens.count
//
// # Privacy
//
// Credentials are never recorded. Client IPs are only added to spans when
// Config.LogClientIPs is set.
package instrumentation
