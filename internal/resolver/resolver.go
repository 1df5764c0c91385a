package resolver

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"enviroscan-backend/internal/observability"
)

// HostLookup is the subset of *net.Resolver used for name resolution
type HostLookup interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Config holds address resolution settings
type Config struct {
	Hostname   string        // e.g., "enviroscan.local"
	FallbackIP string        // Used whenever the lookup fails
	Timeout    time.Duration // Bound on a single lookup
}

// Resolver turns the device hostname into an address. It never fails:
// any lookup error yields the configured fallback.
type Resolver struct {
	config  Config
	lookup  HostLookup
	metrics *observability.Metrics
}

// NewResolver creates a resolver backed by the system resolver
func NewResolver(config Config, metrics *observability.Metrics) *Resolver {
	return NewResolverWithLookup(config, net.DefaultResolver, metrics)
}

// NewResolverWithLookup creates a resolver with a custom lookup implementation
func NewResolverWithLookup(config Config, lookup HostLookup, metrics *observability.Metrics) *Resolver {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Resolver{
		config:  config,
		lookup:  lookup,
		metrics: metrics,
	}
}

// Resolve returns the device address, falling back to the static address
// when the hostname cannot be resolved
func (r *Resolver) Resolve(ctx context.Context) string {
	address, err := r.lookupIPv4(ctx)
	if err != nil {
		log.Printf("Resolver: Using fallback IP %s (%v)", r.config.FallbackIP, err)
		r.metrics.RecordResolution(observability.ResolveFallback)
		return r.config.FallbackIP
	}

	log.Printf("Resolver: Resolved hostname %s to %s", r.config.Hostname, address)
	r.metrics.RecordResolution(observability.ResolveDNS)
	return address
}

func (r *Resolver) lookupIPv4(ctx context.Context) (string, error) {
	if r.config.Hostname == "" {
		return "", fmt.Errorf("no hostname configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	ips, err := r.lookup.LookupIP(ctx, "ip4", r.config.Hostname)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", r.config.Hostname, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no IPv4 address for %s", r.config.Hostname)
	}
	return ips[0].String(), nil
}
