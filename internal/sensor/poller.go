package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"enviroscan-backend/internal/models"
	"enviroscan-backend/internal/observability"
)

var (
	// ErrTransport covers connection, timeout and DNS failures; these are retried
	ErrTransport = errors.New("sensor transport failure")

	// ErrUnexpectedStatus is returned for any non-200 response
	ErrUnexpectedStatus = errors.New("unexpected sensor response status")

	// ErrIdentityMismatch is returned when the payload comes from another device
	ErrIdentityMismatch = errors.New("sensor identity mismatch")

	// ErrDecode is returned when the body is not a valid payload
	ErrDecode = errors.New("invalid sensor payload")
)

const maxPayloadBytes = 1 << 20

// PollerConfig holds sensor polling configuration
type PollerConfig struct {
	ExpectedMAC    string        // e.g., "98:F4:AB:F9:34:22"
	DataPath       string        // e.g., "/data"
	Timeout        time.Duration // Per request
	MaxAttempts    int           // Including the first attempt
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPollerConfig returns default configuration
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		ExpectedMAC:    "98:F4:AB:F9:34:22",
		DataPath:       "/data",
		Timeout:        3 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     16 * time.Second,
	}
}

// Poller fetches single readings from the sensor's HTTP endpoint
type Poller struct {
	client  *http.Client
	config  PollerConfig
	metrics *observability.Metrics
}

// NewPoller creates a new sensor poller
func NewPoller(config PollerConfig, metrics *observability.Metrics) *Poller {
	defaults := DefaultPollerConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.DataPath == "" {
		config.DataPath = defaults.DataPath
	}

	return &Poller{
		client:  &http.Client{Timeout: config.Timeout},
		config:  config,
		metrics: metrics,
	}
}

// Fetch retrieves one payload from the device at address.
// Transport failures are retried with exponential backoff; a non-200
// status, an undecodable body or a foreign device ends the call at once.
func (p *Poller) Fetch(ctx context.Context, address string) (*models.SensorPayload, error) {
	url := p.dataURL(address)

	payload, err := backoff.Retry(ctx,
		func() (*models.SensorPayload, error) {
			return p.fetchOnce(ctx, url)
		},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.config.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("Poller: %v, retrying in %v", err, wait.Round(time.Millisecond))
		}),
	)
	if err != nil {
		p.recordFailure(err)
		return nil, err
	}
	return payload, nil
}

func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.InitialBackoff
	b.MaxInterval = p.config.MaxBackoff
	b.Multiplier = 2
	return b
}

func (p *Poller) fetchOnce(ctx context.Context, url string) (*models.SensorPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request for %s: %w", url, err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayloadBytes))
		return nil, backoff.Permanent(fmt.Errorf("%w: %s from %s", ErrUnexpectedStatus, resp.Status, url))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	var payload models.SensorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrDecode, err))
	}

	if !SameDevice(payload.MAC, p.config.ExpectedMAC) {
		return nil, backoff.Permanent(fmt.Errorf("%w: got %q, want %q", ErrIdentityMismatch, payload.MAC, p.config.ExpectedMAC))
	}

	log.Printf("Poller: Raw data from ESP8266: %s", strings.TrimSpace(string(body)))
	return &payload, nil
}

func (p *Poller) dataURL(address string) string {
	path := p.config.DataPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + address + path
}

func (p *Poller) recordFailure(err error) {
	switch {
	case errors.Is(err, ErrIdentityMismatch):
		p.metrics.RecordFetchFailure(observability.FetchIdentity)
	case errors.Is(err, ErrUnexpectedStatus):
		p.metrics.RecordFetchFailure(observability.FetchStatus)
	case errors.Is(err, ErrDecode):
		p.metrics.RecordFetchFailure(observability.FetchDecode)
	default:
		p.metrics.RecordFetchFailure(observability.FetchTransport)
	}
}

// NormalizeMAC strips separators and case from a hardware address
func NormalizeMAC(mac string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(mac) {
		switch r {
		case ':', '-', '.', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SameDevice reports whether two hardware addresses name the same device
func SameDevice(reported, expected string) bool {
	normalized := NormalizeMAC(reported)
	return normalized != "" && normalized == NormalizeMAC(expected)
}
