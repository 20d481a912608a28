package analytics

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/sirupsen/logrus"
)

// cityReader is the part of *geoip2.Reader used for lookups.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// GeoIPLocator resolves client IPs to country and city names using a MaxMind
// City database. A locator without a database answers every lookup with
// empty strings.
type GeoIPLocator struct {
	mu     sync.RWMutex
	reader cityReader
	logger *logrus.Logger
}

// NewGeoIPLocator opens the database at path. An empty path returns a
// disabled locator.
func NewGeoIPLocator(path string, logger *logrus.Logger) (*GeoIPLocator, error) {
	l := &GeoIPLocator{logger: logger}
	if path == "" {
		return l, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database %s: %w", path, err)
	}
	l.reader = reader
	return l, nil
}

func (l *GeoIPLocator) Lookup(ipStr string) (country, city string) {
	l.mu.RLock()
	reader := l.reader
	l.mu.RUnlock()

	if reader == nil {
		return "", ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return "", ""
	}

	record, err := reader.City(ip)
	if err != nil {
		l.logger.WithError(err).WithField("ip", ipStr).Warn("GeoIP lookup failed")
		return "", ""
	}

	if name, ok := record.Country.Names["en"]; ok {
		country = name
	} else {
		country = record.Country.IsoCode
	}
	city = record.City.Names["en"]
	return country, city
}

func (l *GeoIPLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}
