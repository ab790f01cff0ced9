// Package metrics counts what the sync components do: duplicate drops, page
// fetches, mutation outcomes and backend requests. Counters live in a private
// registry so tests and the stats command can read them back.
package metrics

import (
	"cmp"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calvinalkan/opsync/pkg/optimistic"
)

const namespace = "opsync"

// Outcome label values.
const (
	OK     = "ok"
	Failed = "error"
)

// Metrics holds the process counters.
type Metrics struct {
	Registry *prometheus.Registry

	Duplicates      *prometheus.CounterVec
	Fetches         *prometheus.CounterVec
	Mutations       *prometheus.CounterVec
	MutationLatency *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
}

// New creates and registers all counters.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "duplicates_dropped_total",
			Help:      "Records dropped because their id was already stored.",
		}, []string{"store"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pager",
			Name:      "fetches_total",
			Help:      "Page fetches by outcome.",
		}, []string{"pager", "outcome"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimistic",
			Name:      "mutations_total",
			Help:      "Optimistic mutations by outcome. error means rolled back.",
		}, []string{"coordinator", "outcome"}),
		MutationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimistic",
			Name:      "mutation_seconds",
			Help:      "Time from local apply to resolution.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"coordinator"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Backend HTTP requests by status code and method.",
		}, []string{"code", "method"}),
	}

	m.Registry.MustRegister(m.Duplicates, m.Fetches, m.Mutations, m.MutationLatency, m.Requests)

	return m
}

// OnDuplicate returns a collection.Options.OnDuplicate hook for store.
func (m *Metrics) OnDuplicate(store string) func(id string) {
	c := m.Duplicates.WithLabelValues(store)

	return func(string) { c.Inc() }
}

// OnFetch returns a pager.Options.OnFetch hook for pager.
func (m *Metrics) OnFetch(pager string) func(error) {
	return func(err error) {
		m.Fetches.WithLabelValues(pager, outcome(err)).Inc()
	}
}

// OnResolve returns an optimistic.Options.OnResolve hook for coordinator.
func (m *Metrics) OnResolve(coordinator string) func(optimistic.Result) {
	return func(r optimistic.Result) {
		m.Mutations.WithLabelValues(coordinator, outcome(r.Err)).Inc()
		m.MutationLatency.WithLabelValues(coordinator).Observe(r.Elapsed.Seconds())
	}
}

// Transport wraps next (http.DefaultTransport when nil) so every request is counted.
func (m *Metrics) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return promhttp.InstrumentRoundTripperCounter(m.Requests, next)
}

func outcome(err error) string {
	if err != nil {
		return Failed
	}

	return OK
}

// Sample is one counter value.
type Sample struct {
	Name   string
	Labels string // k=v pairs, comma separated, sorted by key
	Value  float64
}

func (s Sample) String() string {
	if s.Labels == "" {
		return fmt.Sprintf("%s %g", s.Name, s.Value)
	}

	return fmt.Sprintf("%s{%s} %g", s.Name, s.Labels, s.Value)
}

// Snapshot returns every counter and histogram count, sorted by name and labels.
// Histograms are reported as <name>_count and <name>_sum.
func (m *Metrics) Snapshot() ([]Sample, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var out []Sample

	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			pairs := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}

			slices.Sort(pairs)
			labels := strings.Join(pairs, ",")

			switch {
			case metric.GetCounter() != nil:
				out = append(out, Sample{Name: fam.GetName(), Labels: labels, Value: metric.GetCounter().GetValue()})
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				out = append(out,
					Sample{Name: fam.GetName() + "_count", Labels: labels, Value: float64(h.GetSampleCount())},
					Sample{Name: fam.GetName() + "_sum", Labels: labels, Value: h.GetSampleSum()},
				)
			}
		}
	}

	slices.SortFunc(out, func(a, b Sample) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Labels, b.Labels))
	})

	return out, nil
}
