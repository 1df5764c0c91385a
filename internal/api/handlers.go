package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"enviroscan-backend/internal/ml"
	"enviroscan-backend/internal/models"
)

//go:embed web/index.html
var indexHTML []byte

// ReadingSource exposes the retained readings
type ReadingSource interface {
	Recent(n int) []models.Reading
	Len() int
}

// ModelStatusSource reports the calibration model state
type ModelStatusSource interface {
	Status() ml.ModelStatus
}

// AddressSource reports the device address currently polled
type AddressSource interface {
	Address() string
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status        string         `json:"status"`
	DeviceAddress string         `json:"device_address"`
	Model         ml.ModelStatus `json:"model"`
	HistoryLength int            `json:"history_length"`
}

// Handlers serves the presentation endpoints. It only reads shared state.
type Handlers struct {
	readings ReadingSource
	model    ModelStatusSource
	device   AddressSource
	recent   int
}

// NewHandlers creates handlers returning the last recent readings from /data
func NewHandlers(readings ReadingSource, model ModelStatusSource, device AddressSource, recent int) *Handlers {
	if recent <= 0 {
		recent = 10
	}
	return &Handlers{
		readings: readings,
		model:    model,
		device:   device,
		recent:   recent,
	}
}

// HandleIndex serves the dashboard
func (h *Handlers) HandleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// HandleData returns the most recent readings, oldest first
func (h *Handlers) HandleData(c *gin.Context) {
	c.JSON(http.StatusOK, h.readings.Recent(h.recent))
}

// HandleHealth reports loop and model state
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:        "ok",
		Model:         h.model.Status(),
		HistoryLength: h.readings.Len(),
	}
	if h.device != nil {
		resp.DeviceAddress = h.device.Address()
	}
	c.JSON(http.StatusOK, resp)
}
