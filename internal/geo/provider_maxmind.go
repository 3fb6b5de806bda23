package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/onnwee/vigil/internal/audit"
)

// MaxMindProvider resolves IPs against a local MaxMind GeoLite2/GeoIP2
// City database. Lookups are local disk reads, so the resolver's daily
// quota effectively never throttles this provider; the shared timeout
// and cache still apply.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

// NewMaxMindProvider opens the .mmdb file at the given path.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

// Close releases the underlying database handle.
func (p *MaxMindProvider) Close() error {
	return p.reader.Close()
}

// Lookup resolves one IP from the local database.
func (p *MaxMindProvider) Lookup(ctx context.Context, ip string) (*audit.Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip address: %s", ip)
	}

	record, err := p.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup failed: %w", err)
	}

	return &audit.Location{
		Country:   record.Country.Names["en"],
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}
