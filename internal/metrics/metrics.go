// Package metrics exposes DTNEX's counters via github.com/prometheus/
// client_golang. One struct groups every counter/gauge, built once at
// startup and handed to every component that needs it by constructor
// injection.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every counter and gauge the protocol engine updates.
type Metrics struct {
	Registry *prometheus.Registry

	Sent      prometheus.Counter
	Forwarded prometheus.Counter
	Received  prometheus.Counter

	DroppedMalformed  prometheus.Counter
	DroppedExpired    prometheus.Counter
	DroppedAuthFailed prometheus.Counter
	DroppedDuplicate  prometheus.Counter
	DroppedSelfOrigin prometheus.Counter

	RouterTransientErrors prometheus.Counter
	RouterGoneEvents      prometheus.Counter
	TransportSendFailures prometheus.Counter

	ReplayCacheSize   prometheus.Gauge
	MetadataStoreSize prometheus.Gauge
	NeighborCount     prometheus.Gauge
}

// New builds a Metrics registered against a fresh prometheus.Registry,
// suitable for mounting on the diagnostics HTTP endpoint.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dtnex", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dtnex", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}
	return &Metrics{
		Registry: reg,

		Sent:      counter("envelopes_sent_total", "Envelopes sent as part of an originate broadcast."),
		Forwarded: counter("envelopes_forwarded_total", "Envelopes re-emitted by the forward step."),
		Received:  counter("envelopes_received_total", "Envelopes accepted past all inbound checks."),

		DroppedMalformed:  counter("dropped_malformed_total", "Envelopes discarded for decode failure."),
		DroppedExpired:    counter("dropped_expired_total", "Envelopes discarded for expire_time in the past."),
		DroppedAuthFailed: counter("dropped_auth_failed_total", "Envelopes discarded for MAC mismatch."),
		DroppedDuplicate:  counter("dropped_duplicate_total", "Envelopes discarded as replay/loop duplicates."),
		DroppedSelfOrigin: counter("dropped_self_origin_total", "Envelopes discarded as echoes of our own origin."),

		RouterTransientErrors: counter("router_transient_errors_total", "Non-idempotent router insertion failures while the router remained reachable."),
		RouterGoneEvents:      counter("router_gone_events_total", "Times the router was observed to be unreachable or invalid."),
		TransportSendFailures: counter("transport_send_failures_total", "Transport Send calls that returned an error."),

		ReplayCacheSize:   gauge("replay_cache_size", "Current number of entries in the replay cache."),
		MetadataStoreSize: gauge("metadata_store_size", "Current number of records in the metadata store."),
		NeighborCount:     gauge("neighbor_count", "Size of the most recent neighbor snapshot."),
	}
}
