package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/opsync/internal/metrics"
	"github.com/calvinalkan/opsync/pkg/optimistic"
)

func Test_Hooks_Increment_Counters_By_Outcome(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	m.OnDuplicate("jobs")("j1")
	m.OnDuplicate("jobs")("j2")
	m.OnFetch("jobs")(nil)
	m.OnFetch("jobs")(errors.New("down"))
	m.OnResolve("jobs")(optimistic.Result{Elapsed: 30 * time.Millisecond})
	m.OnResolve("jobs")(optimistic.Result{Err: errors.New("rejected"), Elapsed: time.Second})

	assert.InDelta(t, 2, testutil.ToFloat64(m.Duplicates.WithLabelValues("jobs")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Fetches.WithLabelValues("jobs", metrics.OK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Fetches.WithLabelValues("jobs", metrics.Failed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Mutations.WithLabelValues("jobs", metrics.Failed)), 0)
}

func Test_Transport_Counts_Requests_By_Code(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	m := metrics.New()
	client := &http.Client{Transport: m.Transport(nil)}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("418", "get")), 0)
}

func Test_Snapshot_Lists_Counters_Sorted(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.OnFetch("items")(nil)
	m.OnDuplicate("items")("x")
	m.OnResolve("items")(optimistic.Result{})

	samples, err := m.Snapshot()
	require.NoError(t, err)

	var lines []string
	for _, s := range samples {
		lines = append(lines, s.String())
	}

	assert.Equal(t, []string{
		"opsync_collection_duplicates_dropped_total{store=items} 1",
		"opsync_optimistic_mutation_seconds_count{coordinator=items} 1",
		"opsync_optimistic_mutation_seconds_sum{coordinator=items} 0",
		"opsync_optimistic_mutations_total{coordinator=items,outcome=ok} 1",
		"opsync_pager_fetches_total{outcome=ok,pager=items} 1",
	}, lines)
}
