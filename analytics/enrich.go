package analytics

import (
	"net"
	"strings"

	"cmsanalytics/api/models"

	"github.com/mssola/user_agent"
)

// Locator resolves an IP address to a country and city.
type Locator interface {
	Lookup(ip string) (country, city string)
}

// Enricher fills in the visit attributes a beacon left blank.
type Enricher struct {
	Geo         Locator
	AnonymizeIP bool
}

// Enrich derives device, OS and browser from the user agent and location from
// the IP address. Values already present on the beacon are kept, except a
// device type outside desktop/mobile/tablet, which is derived again.
func (e Enricher) Enrich(b *models.PageviewBeacon) {
	b.DeviceType = models.NormalizeDeviceType(b.DeviceType)
	if b.UserAgent != "" && (b.DeviceType == "" || b.OperatingSystem == "" || b.Browser == "") {
		device, os, browser := ParseUserAgent(b.UserAgent)
		if b.DeviceType == "" {
			b.DeviceType = device
		}
		if b.OperatingSystem == "" {
			b.OperatingSystem = os
		}
		if b.Browser == "" {
			b.Browser = browser
		}
	}

	if e.Geo != nil && b.Country == "" && b.IPAddress != "" {
		b.Country, b.City = e.Geo.Lookup(b.IPAddress)
	}

	if e.AnonymizeIP {
		b.IPAddress = MaskIP(b.IPAddress)
	}
}

// ParseUserAgent classifies a user agent string. Tablet rules run before
// mobile ones because most tablet agents also claim to be mobile.
func ParseUserAgent(raw string) (device, os, browser string) {
	ua := user_agent.New(raw)
	lower := strings.ToLower(raw)

	switch {
	case strings.Contains(lower, "ipad"),
		strings.Contains(lower, "tablet"),
		strings.Contains(lower, "kindle"),
		strings.Contains(lower, "silk/"),
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		device = models.DeviceTablet
	case ua.Mobile(), strings.Contains(lower, "iphone"), strings.Contains(lower, "android"):
		device = models.DeviceMobile
	default:
		device = models.DeviceDesktop
	}

	os = ua.OSInfo().Name
	if os == "" {
		os = ua.OS()
	}
	browser, _ = ua.Browser()
	return device, os, browser
}

// MaskIP zeroes the host part of an address: the last octet for IPv4 and
// everything after the first 48 bits for IPv6. Unparseable input is returned
// unchanged.
func MaskIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
