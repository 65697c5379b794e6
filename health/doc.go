// Package health turns stage health reports into statuses that can be
// aggregated and served over HTTP.
//
// A stage is healthy while it can accept data, degraded while it is flushing
// or has lost tuples or deliveries, and unhealthy once a fatal error has put
// it out of service. Error text is sanitized before it leaves the process.
//
//	mon := health.NewMonitor("zipstage")
//	mon.Watch("mix", st)
//	srv := metric.NewServer(":9090", "/metrics", registry, mon)
package health
