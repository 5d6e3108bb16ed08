package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpstream(t *testing.T) {
	m := New()

	m.ObserveUpstream("GET", "products", 200, 30*time.Millisecond)
	m.ObserveUpstream("GET", "products", 200, 10*time.Millisecond)
	m.ObserveUpstream("POST", "sales-returns", 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("GET", "products", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("POST", "sales-returns", "error")))
}

func TestObserveLookupAndSubmission(t *testing.T) {
	m := New()

	m.ObserveLookup("product", "stale", 5*time.Millisecond)
	m.ObserveSubmission("purchase", "success", 108.5)
	m.ObserveSubmission("purchase", "rejected", 50)
	m.SetLookupSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupSearches.WithLabelValues("product", "stale")))
	assert.Equal(t, 108.5, testutil.ToFloat64(m.returnedAmount.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("purchase", "rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lookupSessions))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSubmission("sales", "success", 12)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `pharmadesk_return_submissions_total{flow="sales",result="success"} 1`)
}
