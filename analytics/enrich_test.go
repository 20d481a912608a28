package analytics

import (
	"testing"

	"cmsanalytics/api/models"

	"github.com/stretchr/testify/assert"
)

const (
	uaWindowsChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaMacSafari     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	uaAndroidPhone  = "Mozilla/5.0 (Linux; Android 10; SM-G973F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.106 Mobile Safari/537.36"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 9; SM-T820) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.106 Safari/537.36"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		device  string
		browser string
	}{
		{"Windows Chrome", uaWindowsChrome, models.DeviceDesktop, "Chrome"},
		{"Mac Safari", uaMacSafari, models.DeviceDesktop, "Safari"},
		{"iPhone", uaIPhone, models.DeviceMobile, "Safari"},
		{"iPad Before Mobile", uaIPad, models.DeviceTablet, "Safari"},
		{"Android Phone", uaAndroidPhone, models.DeviceMobile, "Chrome"},
		{"Android Tablet", uaAndroidTablet, models.DeviceTablet, "Chrome"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, os, browser := ParseUserAgent(tt.ua)
			assert.Equal(t, tt.device, device)
			assert.Equal(t, tt.browser, browser)
			assert.NotEmpty(t, os)
		})
	}

	_, os, _ := ParseUserAgent(uaWindowsChrome)
	assert.Contains(t, os, "Windows")
}

func TestMaskIP(t *testing.T) {
	assert.Equal(t, "203.0.113.0", MaskIP("203.0.113.57"))
	assert.Equal(t, "10.1.2.0", MaskIP("::ffff:10.1.2.3"))
	assert.Equal(t, "2001:db8:abcd::", MaskIP("2001:db8:abcd:12::1"))
	assert.Equal(t, "not-an-ip", MaskIP("not-an-ip"))
	assert.Equal(t, "", MaskIP(""))
}

type stubLocator struct {
	country, city string
	calls         int
}

func (s *stubLocator) Lookup(string) (string, string) {
	s.calls++
	return s.country, s.city
}

func TestEnricher_Enrich(t *testing.T) {
	t.Run("Fills Blank Fields", func(t *testing.T) {
		geo := &stubLocator{country: "Germany", city: "Berlin"}
		e := Enricher{Geo: geo, AnonymizeIP: true}

		b := models.PageviewBeacon{UserAgent: uaIPhone, IPAddress: "198.51.100.23"}
		e.Enrich(&b)

		assert.Equal(t, models.DeviceMobile, b.DeviceType)
		assert.Equal(t, "Safari", b.Browser)
		assert.NotEmpty(t, b.OperatingSystem)
		assert.Equal(t, "Germany", b.Country)
		assert.Equal(t, "Berlin", b.City)
		assert.Equal(t, "198.51.100.0", b.IPAddress)
		assert.Equal(t, 1, geo.calls)
	})

	t.Run("Keeps Client Values", func(t *testing.T) {
		geo := &stubLocator{country: "Germany"}
		e := Enricher{Geo: geo}

		b := models.PageviewBeacon{
			UserAgent:  uaIPhone,
			IPAddress:  "198.51.100.23",
			DeviceType: "tablet",
			Country:    "France",
		}
		e.Enrich(&b)

		assert.Equal(t, "tablet", b.DeviceType)
		assert.Equal(t, "France", b.Country)
		assert.Equal(t, "198.51.100.23", b.IPAddress)
		assert.Zero(t, geo.calls)
	})

	t.Run("Unknown Device Type Is Derived", func(t *testing.T) {
		b := models.PageviewBeacon{UserAgent: uaIPhone, DeviceType: "Smartphone"}
		Enricher{}.Enrich(&b)
		assert.Equal(t, models.DeviceMobile, b.DeviceType)

		b = models.PageviewBeacon{UserAgent: uaIPhone, DeviceType: "Desktop"}
		Enricher{}.Enrich(&b)
		assert.Equal(t, models.DeviceDesktop, b.DeviceType)

		b = models.PageviewBeacon{DeviceType: "Smartphone"}
		Enricher{}.Enrich(&b)
		assert.Empty(t, b.DeviceType)
	})

	t.Run("Nothing To Derive", func(t *testing.T) {
		var b models.PageviewBeacon
		Enricher{}.Enrich(&b)
		assert.Equal(t, models.PageviewBeacon{}, b)
	})
}
