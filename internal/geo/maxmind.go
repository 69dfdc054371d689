package geo

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// SourceMaxMind marks locations resolved from the local database.
const SourceMaxMind = "maxmind"

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// MaxMind looks up locations in a local GeoIP2/GeoLite2 City database.
type MaxMind struct {
	reader cityReader
	logger *slog.Logger
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string, logger *slog.Logger) (*MaxMind, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "geoip")
	logger.Info("geoip_database_loaded", "path", path, "epoch", reader.Metadata().BuildEpoch)
	return &MaxMind{reader: reader, logger: logger}, nil
}

// Lookup implements Locator.
func (m *MaxMind) Lookup(_ context.Context, ip string) *model.Geo {
	parsed := net.ParseIP(ip)
	if parsed == nil || !IsPublic(ip) {
		return nil
	}

	record, err := m.reader.City(parsed)
	if err != nil {
		m.logger.Debug("geoip_lookup_failed", "error", err)
		return nil
	}

	g := &model.Geo{Source: SourceMaxMind}
	if code := record.Country.IsoCode; code != "" {
		g.Country = model.Truncate(code, 2)
	}
	if len(record.Subdivisions) > 0 {
		g.Region = record.Subdivisions[0].IsoCode
	}
	g.City = record.City.Names["en"]
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		g.Lat, g.Lon = &lat, &lon
	}

	if g.IsZero() {
		return nil
	}
	return g
}

// Close releases the database.
func (m *MaxMind) Close() error {
	return m.reader.Close()
}
