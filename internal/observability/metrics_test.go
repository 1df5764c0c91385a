package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordPoll(PollSuccess)
	m.RecordPoll(PollSuccess)
	m.RecordPoll(PollNoData)
	m.RecordFetchFailure(FetchIdentity)
	m.RecordResolution(ResolveFallback)
	m.RecordFit(20)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues(PollSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues(PollNoData)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailuresTotal.WithLabelValues(FetchIdentity)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues(ResolveFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelFitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelTrained))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.TrainingSetSize))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordPoll(PollSuccess)
		m.RecordFetchFailure(FetchTransport)
		m.RecordResolution(ResolveDNS)
		m.RecordFit(1)
		m.SetModelState(true, 1)
		m.RecordModelFault()
		m.RecordIterationFault()
		m.SetHistoryLength(3)
		m.RecordReading(1, 2, 3)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordReading(80, 79.5, 79.5)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "enviroscan_reading_raw_ppm 80")
}
