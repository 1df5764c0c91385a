package services

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"enviroscan-backend/internal/aggregator"
	"enviroscan-backend/internal/formula"
	"enviroscan-backend/internal/models"
	"enviroscan-backend/internal/observability"
)

// AddressResolver yields the current device address; it never fails
type AddressResolver interface {
	Resolve(ctx context.Context) string
}

// SensorFetcher retrieves one verified payload from the device
type SensorFetcher interface {
	Fetch(ctx context.Context, address string) (*models.SensorPayload, error)
}

// Calibrator maps raw to calibrated concentration and learns from each reading
type Calibrator interface {
	Predict(rawPPM float64) float64
	Train(rawPPM, calibratedPPM float64) error
}

// AcquisitionServiceConfig holds configuration for the acquisition loop
type AcquisitionServiceConfig struct {
	PollInterval time.Duration // Cadence of the loop
	ExpectedMAC  string        // Reported when the payload omits its MAC
	ChannelSize  int           // Size of the outgoing reading channel, 0 disables it
}

// DefaultAcquisitionServiceConfig returns default configuration
func DefaultAcquisitionServiceConfig() AcquisitionServiceConfig {
	return AcquisitionServiceConfig{
		PollInterval: 1 * time.Second,
		ExpectedMAC:  "98:F4:AB:F9:34:22",
		ChannelSize:  0,
	}
}

// AcquisitionService drives the pipeline: resolve, fetch, calibrate, train,
// record. It is the only writer of the model and the history buffer.
type AcquisitionService struct {
	resolver AddressResolver
	fetcher  SensorFetcher
	model    Calibrator
	history  *aggregator.HistoryBuffer
	metrics  *observability.Metrics

	pollInterval time.Duration
	expectedMAC  string

	// Output channel for new readings (nil when nobody listens)
	ReadingChan chan *models.Reading

	mu      sync.RWMutex
	address string
	now     func() time.Time
}

// NewAcquisitionService creates a new acquisition service
func NewAcquisitionService(
	resolver AddressResolver,
	fetcher SensorFetcher,
	model Calibrator,
	history *aggregator.HistoryBuffer,
	metrics *observability.Metrics,
	config AcquisitionServiceConfig,
) *AcquisitionService {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultAcquisitionServiceConfig().PollInterval
	}

	s := &AcquisitionService{
		resolver:     resolver,
		fetcher:      fetcher,
		model:        model,
		history:      history,
		metrics:      metrics,
		pollInterval: config.PollInterval,
		expectedMAC:  config.ExpectedMAC,
		now:          time.Now,
	}
	if config.ChannelSize > 0 {
		s.ReadingChan = make(chan *models.Reading, config.ChannelSize)
	}
	return s
}

// Start resolves the device once and polls it until the context is cancelled
func (s *AcquisitionService) Start(ctx context.Context) {
	log.Println("AcquisitionService: Starting...")

	s.setAddress(s.resolver.Resolve(ctx))
	log.Printf("AcquisitionService: Fetching data from %s every %v", s.Address(), s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Initial poll
	s.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("AcquisitionService: Shutting down...")
			if s.ReadingChan != nil {
				close(s.ReadingChan)
			}
			log.Println("AcquisitionService: Shutdown complete")
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single iteration. Faults, panics included, are logged
// and never escape.
func (s *AcquisitionService) PollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("AcquisitionService: Error in data collection: %v\n%s", r, debug.Stack())
			s.metrics.RecordIterationFault()
		}
	}()

	if err := s.poll(ctx); err != nil {
		log.Printf("AcquisitionService: Error in data collection: %v", err)
		s.metrics.RecordIterationFault()
	}
}

func (s *AcquisitionService) poll(ctx context.Context) error {
	address := s.Address()
	if address == "" {
		address = s.resolver.Resolve(ctx)
		s.setAddress(address)
	}

	payload, err := s.fetcher.Fetch(ctx, address)
	if err != nil || payload == nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("AcquisitionService: Failed to fetch data, retrying... (%v)", err)
		s.metrics.RecordPoll(observability.PollNoData)
		// The device may have picked up a new lease
		s.setAddress(s.resolver.Resolve(ctx))
		return nil
	}

	reading := s.buildReading(payload, address)

	if err := s.model.Train(reading.RawPPM, reading.CalibratedPPM); err != nil {
		log.Printf("AcquisitionService: Warning - model training: %v", err)
	}

	size := s.history.Append(reading)
	s.metrics.SetHistoryLength(size)
	s.metrics.RecordReading(reading.RawPPM, reading.CalibratedPPM, reading.AQI)
	s.metrics.RecordPoll(observability.PollSuccess)
	log.Printf("AcquisitionService: Processed data: %s", reading)

	s.forward(&reading)
	return nil
}

// buildReading enriches a payload. Device supplied values win over derived ones.
func (s *AcquisitionService) buildReading(payload *models.SensorPayload, address string) models.Reading {
	raw, ok := payload.RawPPM.Float()
	if !ok {
		raw, _ = payload.CalibratedPPM.Float()
	}

	calibrated := s.model.Predict(raw)

	aqi, ok := payload.AQI.Float()
	if !ok {
		aqi = formula.AirQualityIndex(calibrated)
	}
	gas, ok := payload.GasPercentage.Float()
	if !ok {
		gas = formula.GasPercentage(calibrated)
	}

	ip := payload.IP
	if ip == "" {
		ip = address
	}
	mac := payload.MAC
	if mac == "" {
		mac = s.expectedMAC
	}

	return models.Reading{
		ID:            uuid.NewString(),
		Timestamp:     s.now().Truncate(time.Second),
		RawPPM:        raw,
		CalibratedPPM: calibrated,
		AQI:           aqi,
		GasPercentage: clampPercentage(gas),
		IP:            ip,
		MAC:           mac,
	}
}

// forward offers the reading to ReadingChan without stalling the loop
func (s *AcquisitionService) forward(reading *models.Reading) {
	if s.ReadingChan == nil {
		return
	}

	select {
	case s.ReadingChan <- reading:
	case <-time.After(100 * time.Millisecond):
		log.Printf("AcquisitionService: Warning - reading channel full, dropping reading %s", reading.ID)
	}
}

// Address returns the device address currently polled
func (s *AcquisitionService) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *AcquisitionService) setAddress(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.address != "" && s.address != address {
		log.Printf("AcquisitionService: Device address changed %s -> %s", s.address, address)
	}
	s.address = address
}

func clampPercentage(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func (s *AcquisitionService) String() string {
	return fmt.Sprintf("AcquisitionService{address=%s, interval=%v}", s.Address(), s.pollInterval)
}
