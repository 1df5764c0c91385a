package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enviroscan-backend/internal/aggregator"
	"enviroscan-backend/internal/ml"
	"enviroscan-backend/internal/models"
	"enviroscan-backend/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedStatus ml.ModelStatus

func (s fixedStatus) Status() ml.ModelStatus { return ml.ModelStatus(s) }

type fixedAddress string

func (a fixedAddress) Address() string { return string(a) }

func setupTestRouter(history *aggregator.HistoryBuffer) *gin.Engine {
	h := NewHandlers(history, fixedStatus{Trained: true, Samples: 20}, fixedAddress("192.168.43.240"), 10)
	return NewRouter(h, observability.NewMetrics().Handler())
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleData_Empty(t *testing.T) {
	r := setupTestRouter(aggregator.NewHistoryBuffer(100))

	w := get(t, r, "/data")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleData_ReturnsLastTen(t *testing.T) {
	history := aggregator.NewHistoryBuffer(100)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		history.Append(models.Reading{
			ID:            "r",
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			RawPPM:        float64(i),
			CalibratedPPM: float64(i),
			MAC:           "98:F4:AB:F9:34:22",
		})
	}
	r := setupTestRouter(history)

	w := get(t, r, "/data")

	require.Equal(t, http.StatusOK, w.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 10)
	assert.Equal(t, 15.0, body[0]["raw_ppm"])
	assert.Equal(t, 24.0, body[9]["ml_ppm"])
	assert.Equal(t, "2024-03-01 12:00:24", body[9]["timestamp"])
	for _, key := range []string{"aqi", "gas_percentage", "ip", "mac"} {
		assert.Contains(t, body[0], key)
	}
}

func TestHandleIndex(t *testing.T) {
	w := get(t, setupTestRouter(aggregator.NewHistoryBuffer(10)), "/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "fetch('/data')")
}

func TestHandleHealth(t *testing.T) {
	history := aggregator.NewHistoryBuffer(10)
	history.Append(models.Reading{RawPPM: 1})

	w := get(t, setupTestRouter(history), "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "192.168.43.240", resp.DeviceAddress)
	assert.True(t, resp.Model.Trained)
	assert.Equal(t, 20, resp.Model.Samples)
	assert.Equal(t, 1, resp.HistoryLength)
}

func TestMetricsRoute(t *testing.T) {
	w := get(t, setupTestRouter(aggregator.NewHistoryBuffer(10)), "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "enviroscan_")
}

func TestMetricsRoute_Disabled(t *testing.T) {
	h := NewHandlers(aggregator.NewHistoryBuffer(10), fixedStatus{}, nil, 0)
	w := get(t, NewRouter(h, nil), "/metrics")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
