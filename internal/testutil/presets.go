package testutil

// WithStandardTestData adds a small, conflict-free registry:
//
//   - logging.Sink (multiple): acme.Stdout at 10, beta.File at 20
//   - metrics.Exporter (single): acme.Prometheus at 5, beta.Statsd at 1
//   - http.Server: config only, port from acme overridden by beta
func (b *Builder) WithStandardTestData() *Builder {
	return b.
		WithContract("acme", "logging.Sink", Capability("io.Writer"), InitOrder(1)).
		WithContract("acme", "metrics.Exporter", Single()).
		WithContract("acme", "http.Server", Single(), Description("listener settings")).
		WithBinding("acme", "logging.Sink", "acme.Stdout", Priority(10)).
		WithBinding("acme", "metrics.Exporter", "acme.Prometheus", Priority(5),
			Values(map[string]any{"path": "/metrics"})).
		WithConfig("acme", "http.Server", map[string]any{"port": 8080, "tags": []any{"acme"}}).
		WithBinding("beta", "logging.Sink", "beta.File", Priority(20)).
		WithBinding("beta", "metrics.Exporter", "beta.Statsd", Priority(1)).
		WithConfig("beta", "http.Server", map[string]any{"port": 9090})
}
