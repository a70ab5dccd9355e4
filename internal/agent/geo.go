package agent

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoResolver maps a client address to an ISO country code, or "".
type GeoResolver interface {
	Country(ip net.IP) string
}

// GeoIPResolver reads a MaxMind country or city database.
type GeoIPResolver struct {
	reader *geoip2.Reader
}

func NewGeoIPResolver(path string) (*GeoIPResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoIPResolver{reader: reader}, nil
}

func (g *GeoIPResolver) Country(ip net.IP) string {
	if ip == nil {
		return ""
	}
	record, err := g.reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (g *GeoIPResolver) Close() error {
	return g.reader.Close()
}
