// Package metric provides Prometheus-based metrics collection and the admin
// HTTP server for the adapter.
//
// The package offers a registry holding the pipeline metrics (Metrics) plus a
// MetricsRegistrar for component-specific collectors. The Server exposes the
// registry in Prometheus format and serves any extra admin routes, such as
// health and parser listings, registered before Start.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer("0.0.0.0", 9090, "/metrics", registry, logger)
//	server.Handle("/health", monitor.Handler())
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
//
//	m := registry.CoreMetrics()
//	m.RecordRequest("http", 200)
//	m.RecordDelivery("v2", "success", elapsed)
//
// # Core Metrics
//
// All metric names carry the ngsi_adapter namespace:
//
//   - ingest_requests_total{origin,status}: accepted or rejected probe requests
//   - parser_resolutions_total{result}: parser lookups
//   - delivery_total{outcome}, delivery_attempts_total, delivery_in_flight
//   - delivery_duration_seconds{variant}: reception to result, per broker variant
//   - broker_responses_total{code}: broker HTTP status codes
//
// Duplicate registration through the MetricsRegistrar is rejected with an
// invalid-class error. Collectors can be removed with Unregister.
package metric
