package resolver

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"enviroscan-backend/internal/observability"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	args := m.Called(network, host)
	ips, _ := args.Get(0).([]net.IP)
	return ips, args.Error(1)
}

func testConfig() Config {
	return Config{Hostname: "enviroscan.local", FallbackIP: "192.168.43.240"}
}

func TestResolve_DNS(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("LookupIP", "ip4", "enviroscan.local").Return([]net.IP{net.ParseIP("10.0.0.7")}, nil)
	metrics := observability.NewMetrics()

	r := NewResolverWithLookup(testConfig(), lookup, metrics)

	assert.Equal(t, "10.0.0.7", r.Resolve(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResolutionsTotal.WithLabelValues(observability.ResolveDNS)))
	lookup.AssertExpectations(t)
}

func TestResolve_FallbackOnError(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("LookupIP", "ip4", "enviroscan.local").Return(nil, &net.DNSError{Err: "no such host", IsNotFound: true})
	metrics := observability.NewMetrics()

	r := NewResolverWithLookup(testConfig(), lookup, metrics)

	assert.Equal(t, "192.168.43.240", r.Resolve(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResolutionsTotal.WithLabelValues(observability.ResolveFallback)))
}

func TestResolve_FallbackOnEmptyAnswer(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("LookupIP", "ip4", "enviroscan.local").Return([]net.IP{}, nil)

	r := NewResolverWithLookup(testConfig(), lookup, nil)

	assert.Equal(t, "192.168.43.240", r.Resolve(context.Background()))
}

func TestResolve_FallbackWithoutHostname(t *testing.T) {
	lookup := new(mockLookup)
	cfg := testConfig()
	cfg.Hostname = ""

	r := NewResolverWithLookup(cfg, lookup, nil)

	assert.Equal(t, "192.168.43.240", r.Resolve(context.Background()))
	lookup.AssertNotCalled(t, "LookupIP", mock.Anything, mock.Anything)
}

func TestResolve_CancelledContext(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("LookupIP", "ip4", "enviroscan.local").Return(nil, errors.New("context canceled"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolverWithLookup(testConfig(), lookup, nil)

	assert.Equal(t, "192.168.43.240", r.Resolve(ctx))
}
