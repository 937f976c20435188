package linkreg

import "github.com/prometheus/client_golang/prometheus"

// counters tracks per-label introspection counters (spec.md §6): hits and
// misses against admin_map, and "enforced" hits/misses against
// reachable_map — i.e. whether policy intersection actually found a usable
// adjacency for the label, not just whether the label was known at all.
type counters struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	enforcedHits  *prometheus.CounterVec
	enforcedMiss  *prometheus.CounterVec
}

func newCounters(reg prometheus.Registerer) *counters {
	c := &counters{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkpath",
			Subsystem: "linkreg",
			Name:      "hits_total",
			Help:      "Admin-map lookups that resolved to a labeled link.",
		}, []string{"label"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkpath",
			Subsystem: "linkreg",
			Name:      "misses_total",
			Help:      "Admin-map lookups that found no labeled link.",
		}, []string{"label"}),
		enforcedHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkpath",
			Subsystem: "linkreg",
			Name:      "enforced_hits_total",
			Help:      "Reachable-map lookups that resolved a usable adjacency for a label.",
		}, []string{"label"}),
		enforcedMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkpath",
			Subsystem: "linkreg",
			Name:      "enforced_misses_total",
			Help:      "Reachable-map lookups that found the label administratively present but unreachable.",
		}, []string{"label"}),
	}
	if reg != nil {
		reg.MustRegister(c.hits, c.misses, c.enforcedHits, c.enforcedMiss)
	}
	return c
}
