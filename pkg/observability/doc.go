// Package observability turns engine lifecycle events into Prometheus metrics.
//
// Metrics are registered on a caller-supplied registry so several engines (or tests)
// can coexist in one process:
//
//	reg := prometheus.NewRegistry()
//	m := observability.NewMetrics(reg)
//	eng, _ := threadgraph.New(g, store, threadgraph.WithLifecycleHooks(m.Hooks()))
//	http.Handle("/metrics", m.Handler())
package observability
